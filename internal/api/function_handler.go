package api

import (
	"net/http"
)

// ListFunctions возвращает функции реестра в порядке выполнения.
// GET /api/v1/functions
func (h *Handler) ListFunctions(w http.ResponseWriter, r *http.Request) {
	if h.planner == nil {
		List(w, []FunctionResponse{}, 0)
		return
	}

	fns, err := h.planner.Plan(nil)
	if err != nil {
		InternalError(w, h.log(r), err)
		return
	}

	result := make([]FunctionResponse, len(fns))
	for i, fn := range fns {
		result[i] = FunctionResponse{Name: fn.Name(), Order: fn.Order()}
	}

	List(w, result, len(result))
}
