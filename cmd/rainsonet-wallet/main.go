// Copyright 2025 Certen Protocol
//
// Thin CLI façade over the §6 HTTP API: wallet key management is
// reduced to a single local Ed25519 key file (no multi-wallet ceremony,
// per the Non-goals), and every payment command is a direct translation
// of original_source/cli/src/{main.rs,commands.rs}'s command surface.
package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Zarethos/Rainsonet/pkg/crypto"
	"github.com/Zarethos/Rainsonet/pkg/ledger"
)

var (
	nodeURL string
	keyPath string
)

func main() {
	root := &cobra.Command{
		Use:   "relyo",
		Short: "RELYO - Rainsonet payment CLI",
	}
	root.PersistentFlags().StringVarP(&nodeURL, "node", "n", "http://127.0.0.1:8080", "node URL")
	root.PersistentFlags().StringVarP(&keyPath, "key", "k", "./wallet.key", "wallet key file")

	root.AddCommand(
		keygenCmd(),
		balanceCmd(),
		sendCmd(),
		transactionCmd(),
		statusCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate or show this wallet's address",
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := crypto.LoadOrGenerateKeyPair(keyPath)
			if err != nil {
				return err
			}
			addr := ledger.AddressFromPublicKey(kp.Public)
			fmt.Println("Address:", addr.Hex())
			fmt.Println("Public Key:", hex.EncodeToString(kp.Public))
			return nil
		},
	}
}

func balanceCmd() *cobra.Command {
	var wallet bool
	cmd := &cobra.Command{
		Use:   "balance [address]",
		Short: "Get account balance",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := resolveAddress(args, wallet)
			if err != nil {
				return err
			}
			var out struct {
				Balance string `json:"balance"`
			}
			if err := getJSON(fmt.Sprintf("%s/balance/%s", nodeURL, addr), &out); err != nil {
				return err
			}
			fmt.Println("Address:", addr)
			fmt.Println("Balance:", out.Balance)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&wallet, "wallet", "w", false, "resolve address from the local wallet key")
	return cmd
}

func sendCmd() *cobra.Command {
	var to, amount, fee string
	var nonce int64
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send RELYO tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := crypto.LoadOrGenerateKeyPair(keyPath)
			if err != nil {
				return err
			}
			from := ledger.AddressFromPublicKey(kp.Public)
			toAddr, err := ledger.ParseAddressHex(to)
			if err != nil {
				return fmt.Errorf("invalid recipient address: %w", err)
			}
			amt, err := ledger.AmountFromDecimal(amount)
			if err != nil {
				return fmt.Errorf("invalid amount: %w", err)
			}
			feeAmt, err := ledger.AmountFromDecimal(fee)
			if err != nil {
				return fmt.Errorf("invalid fee: %w", err)
			}

			txNonce := uint64(nonce)
			if nonce < 0 {
				var acc struct {
					Nonce uint64 `json:"nonce"`
				}
				if err := getJSON(fmt.Sprintf("%s/account/%s", nodeURL, from.Hex()), &acc); err != nil {
					return fmt.Errorf("fetch current nonce: %w", err)
				}
				txNonce = acc.Nonce
			}

			tx := &ledger.Transaction{
				From:      from,
				To:        toAddr,
				Amount:    amt,
				Fee:       feeAmt,
				Nonce:     txNonce,
				Timestamp: time.Now().Unix(),
				PublicKey: kp.Public,
			}
			tx.Signature = crypto.SignTx(kp, tx.SigningPreimage())

			req := map[string]interface{}{
				"from":       tx.From.Hex(),
				"to":         tx.To.Hex(),
				"amount":     amt.String(),
				"fee":        feeAmt.String(),
				"nonce":      tx.Nonce,
				"timestamp":  tx.Timestamp,
				"public_key": hex.EncodeToString(tx.PublicKey),
				"signature":  hex.EncodeToString(tx.Signature),
			}

			var out struct {
				ID string `json:"id"`
			}
			fmt.Printf("Sending %s to %s...\n", amount, to)
			if err := postJSON(nodeURL+"/transaction", req, &out); err != nil {
				return err
			}
			fmt.Println("Transaction submitted")
			fmt.Println("TX ID:", out.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&to, "to", "t", "", "recipient address")
	cmd.Flags().StringVarP(&amount, "amount", "a", "", "amount to send")
	cmd.Flags().StringVar(&fee, "fee", "1", "transaction fee")
	cmd.Flags().Int64Var(&nonce, "nonce", -1, "nonce (auto-fetched if omitted)")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func transactionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transaction <tx_id>",
		Short: "Get transaction status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]interface{}
			if err := getJSON(nodeURL+"/transaction/"+args[0], &out); err != nil {
				return err
			}
			raw, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(raw))
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Node status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				IsValidator      bool   `json:"is_validator"`
				FinalizedVersion uint64 `json:"finalized_version"`
				FinalizedRoot    string `json:"finalized_root"`
				MempoolSize      int    `json:"mempool_size"`
			}
			if err := getJSON(nodeURL+"/status", &out); err != nil {
				return err
			}
			fmt.Println("Rainsonet Node Status")
			fmt.Println("=====================")
			fmt.Println("State Version:", out.FinalizedVersion)
			fmt.Println("State Root:   ", out.FinalizedRoot)
			fmt.Println("Is Validator: ", out.IsValidator)
			fmt.Println("Mempool Size: ", out.MempoolSize)
			return nil
		},
	}
}

func resolveAddress(args []string, wallet bool) (string, error) {
	if wallet || len(args) == 0 {
		kp, err := crypto.LoadOrGenerateKeyPair(keyPath)
		if err != nil {
			return "", err
		}
		return ledger.AddressFromPublicKey(kp.Public).Hex(), nil
	}
	return args[0], nil
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func getJSON(url string, out interface{}) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	return decodeEnvelope(resp, out)
}

func postJSON(url string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	return decodeEnvelope(resp, out)
}

func decodeEnvelope(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("malformed response from node: %w", err)
	}
	if !env.Success {
		return fmt.Errorf("node error: %s", env.Error)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
