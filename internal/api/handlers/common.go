package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/magicdevops/cloudleakage/internal/api/dto"
	"github.com/magicdevops/cloudleakage/internal/awsx"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeSessionError maps session derivation faults onto HTTP statuses. The
// error message is safe to surface; it never contains credential material.
func writeSessionError(w http.ResponseWriter, err error) bool {
	switch {
	case awsx.IsSessionError(err, awsx.SessionNotConnected):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Account not found or not connected"})
	case awsx.IsSessionError(err, awsx.SessionCredentialCorrupt):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Stored credentials cannot be decrypted"})
	case awsx.IsSessionError(err, awsx.SessionMalformedCredential):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Stored credentials are malformed"})
	case awsx.IsSessionError(err, awsx.SessionAssumeRoleFailed):
		writeJSON(w, http.StatusBadGateway, dto.ErrorResponse{Error: "Role assumption failed"})
	default:
		return false
	}
	return true
}
