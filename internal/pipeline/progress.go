package pipeline

// Progress — снимок прогресса и флага отмены цепочки.
//
// Canceled монотонен: однажды установленный, остаётся true до конца run.
type Progress struct {
	Max      int    `json:"max"`
	Value    int    `json:"value"`
	Message  string `json:"message,omitempty"`
	Canceled bool   `json:"canceled"`
}

// Percent возвращает прогресс в процентах (0, если Max не задан).
func (p Progress) Percent() int {
	if p.Max <= 0 {
		return 0
	}
	v := min(max(p.Value, 0), p.Max)
	return v * 100 / p.Max
}

// State — состояние цепочки.
//
// Жизненный цикл:
//
//	NOT_STARTED → RUNNING → TERMINAL → DONE
//
// Отмена — флаг в Progress, а не отдельное состояние: отменённая цепочка
// всё равно проходит TERMINAL ровно один раз.
type State string

const (
	StateNotStarted State = "NOT_STARTED"
	StateRunning    State = "RUNNING"
	StateTerminal   State = "TERMINAL"
	StateDone       State = "DONE"
)
