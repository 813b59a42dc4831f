// Copyright 2025 Certen Protocol
//
// Thin HTTP façade over a runtime.Node: status/account/balance/
// transaction-submission/transaction-lookup/mempool/health (§6). Every
// response wraps {success, data?, error?}; validation errors map to 400,
// storage errors to 500, unknown lookups to 404 — §7's client-facing
// error taxonomy.
package api

import (
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/Zarethos/Rainsonet/pkg/crypto"
	"github.com/Zarethos/Rainsonet/pkg/ledger"
	"github.com/Zarethos/Rainsonet/pkg/mempool"
	"github.com/Zarethos/Rainsonet/pkg/runtime"
)

// Node is the subset of runtime.Node's surface the façade depends on,
// narrowed so handlers can be tested against a fake.
type Node interface {
	SubmitTransaction(tx *ledger.Transaction) error
	Ledger() *ledger.Ledger
	Mempool() *mempool.Mempool
	Status() runtime.Status
}

// Server wires a Node's query surface to an httprouter.Router.
type Server struct {
	node   Node
	router *httprouter.Router
}

// New builds a Server and registers every §6 route.
func New(node Node) *Server {
	s := &Server{node: node, router: httprouter.New()}
	s.router.GET("/status", s.handleStatus)
	s.router.GET("/account/:addr", s.handleAccount)
	s.router.GET("/balance/:addr", s.handleBalance)
	s.router.POST("/transaction", s.handleSubmitTransaction)
	s.router.GET("/transaction/:tx_id", s.handleGetTransaction)
	s.router.GET("/mempool", s.handleMempool)
	s.router.GET("/health", s.handleHealth)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// envelope is the uniform {success, data?, error?} response shape.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

func writeOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeOK(w, s.node.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeOK(w, map[string]string{"status": "ok"})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	addr, err := ledger.ParseAddressHex(ps.ByName("addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	acc, err := s.node.Ledger().GetAccount(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, acc)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	addr, err := ledger.ParseAddressHex(ps.ByName("addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bal, err := s.node.Ledger().GetBalance(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]string{"balance": bal.String()})
}

// submitTransactionRequest is the §6 POST /transaction body: addresses,
// public key and signature are hex strings, amount and fee are decimal
// strings, and nonce and timestamp are plain JSON numbers.
type submitTransactionRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Fee       string `json:"fee"`
	Nonce     uint64 `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req submitTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}

	tx, err := parseTransaction(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !crypto.VerifyTx(tx.PublicKey, tx.SigningPreimage(), tx.Signature) {
		writeError(w, http.StatusBadRequest, "invalid transaction signature")
		return
	}
	tx.ID = tx.ComputeID()

	if err := s.node.SubmitTransaction(tx); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeOK(w, map[string]string{"id": hex.EncodeToString(tx.ID[:])})
}

func parseTransaction(req submitTransactionRequest) (*ledger.Transaction, error) {
	from, err := ledger.ParseAddressHex(req.From)
	if err != nil {
		return nil, err
	}
	to, err := ledger.ParseAddressHex(req.To)
	if err != nil {
		return nil, err
	}
	amount, err := ledger.AmountFromDecimal(req.Amount)
	if err != nil {
		return nil, err
	}
	fee, err := ledger.AmountFromDecimal(req.Fee)
	if err != nil {
		return nil, err
	}
	pub, err := crypto.ParsePublicKeyHex(req.PublicKey)
	if err != nil {
		return nil, err
	}
	sig, err := hex.DecodeString(req.Signature)
	if err != nil {
		return nil, err
	}
	return &ledger.Transaction{
		From:      from,
		To:        to,
		Amount:    amount,
		Fee:       fee,
		Nonce:     req.Nonce,
		Timestamp: req.Timestamp,
		PublicKey: pub,
		Signature: sig,
	}, nil
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	raw, err := hex.DecodeString(trimHex(ps.ByName("tx_id")))
	if err != nil || len(raw) != 32 {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	var id [32]byte
	copy(id[:], raw)

	tx, ok := s.node.Mempool().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "transaction not found in mempool")
		return
	}
	writeOK(w, tx)
}

func (s *Server) handleMempool(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit := s.node.Mempool().Count()
	writeOK(w, map[string]interface{}{
		"count":        limit,
		"transactions": s.node.Mempool().GetHighestPriority(limit),
	})
}

func trimHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
