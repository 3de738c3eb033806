package loop

// PendingUpdate holds one-shot prompt/model overrides queued for the next
// iteration. Each field independently replaces any previously queued value;
// the pair is taken together when the next iteration assembles its input.
type PendingUpdate struct {
	Prompt *string `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Model  *string `yaml:"model,omitempty" json:"model,omitempty"`
}

// IsEmpty returns true when neither field is queued.
func (p *PendingUpdate) IsEmpty() bool {
	return p == nil || (p.Prompt == nil && p.Model == nil)
}

// QueuePrompt replaces any queued prompt override on the record.
func (l *Loop) QueuePrompt(prompt string) {
	if l.Pending == nil {
		l.Pending = &PendingUpdate{}
	}
	l.Pending.Prompt = &prompt
}

// QueueModel replaces any queued model override on the record.
func (l *Loop) QueueModel(model string) {
	if l.Pending == nil {
		l.Pending = &PendingUpdate{}
	}
	l.Pending.Model = &model
}

// TakePending moves the queued update out of the record. Both fields are
// cleared in the same step even if only one was set, so an update can never
// be half-consumed. The second return is false when nothing was queued.
func (l *Loop) TakePending() (PendingUpdate, bool) {
	if l.Pending.IsEmpty() {
		l.Pending = nil
		return PendingUpdate{}, false
	}
	taken := *l.Pending
	l.Pending = nil
	return taken, true
}

// ClearPending drops any queued update. Safe to call when nothing is
// queued.
func (l *Loop) ClearPending() {
	l.Pending = nil
}
