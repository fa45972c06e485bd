package admin

import (
	"net/http"

	"github.com/firefly-engineering/keyrelay/internal/errors"
	"github.com/firefly-engineering/keyrelay/internal/keys"
)

// RotateMessage is reported after a successful manual rotation.
const RotateMessage = "API key rotated"

// RotateResult is the body of a successful GET /rotate-key.
type RotateResult struct {
	Message       string `json:"message"`
	PreviousIndex int    `json:"previousIndex"`
	CurrentIndex  int    `json:"currentIndex"`
	TotalKeys     int    `json:"totalKeys"`
}

// RotateKey advances the cursor without consuming a key.
func (h *Handlers) RotateKey(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	rot, err := h.keys.Rotate()
	if err != nil {
		var relayErr *errors.RelayError
		if errors.Is(err, keys.ErrNoCredentials) {
			relayErr = errors.NoCredentials()
		} else {
			relayErr = errors.Wrap(errors.ExitGeneralError, "rotation failed", err)
		}
		h.logger.Warn("manual rotation rejected", "error", relayErr)
		writeJSON(w, errors.HTTPStatus(relayErr), ErrorBody{Error: relayErr.Error()})
		return
	}

	h.metrics.Rotated("manual")
	h.logger.Info("API key rotated manually",
		"previous_index", rot.Previous,
		"current_index", rot.Current,
		"total_keys", rot.Count)

	writeJSON(w, http.StatusOK, RotateResult{
		Message:       RotateMessage,
		PreviousIndex: rot.Previous,
		CurrentIndex:  rot.Current,
		TotalKeys:     rot.Count,
	})
}
