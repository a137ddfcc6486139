package handlers

import "net/http"

type modelInfo interface {
	ModelName() string
	BackendName() string
}

type HealthHandler struct {
	model modelInfo
}

func NewHealthHandler(model modelInfo) *HealthHandler {
	return &HealthHandler{model: model}
}

// Health reports the loaded model. The process only serves once the model is
// loaded, so reaching this handler means it is ready.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"model":   h.model.ModelName(),
		"backend": h.model.BackendName(),
	})
}
