package models

// EventStatus is the derived lifecycle status of a registration record.
type EventStatus string

const (
	StatusInProgress EventStatus = "IN_PROGRESS"
	StatusNotified   EventStatus = "NOTIFIED"
	StatusDeclared   EventStatus = "DECLARED"
	StatusValidated  EventStatus = "VALIDATED"
	StatusRegistered EventStatus = "REGISTERED"
	StatusCertified  EventStatus = "CERTIFIED"
	StatusRejected   EventStatus = "REJECTED"
	StatusArchived   EventStatus = "ARCHIVED"
)

func (s EventStatus) IsValid() bool {
	switch s {
	case StatusInProgress, StatusNotified, StatusDeclared, StatusValidated,
		StatusRegistered, StatusCertified, StatusRejected, StatusArchived:
		return true
	}
	return false
}

// statusEffects maps status-changing actions to the status they produce.
var statusEffects = map[ActionType]EventStatus{
	ActionCreate:           StatusInProgress,
	ActionNotify:           StatusNotified,
	ActionDeclare:          StatusDeclared,
	ActionValidate:         StatusValidated,
	ActionRegister:         StatusRegistered,
	ActionPrintCertificate: StatusCertified,
	ActionReject:           StatusRejected,
	ActionArchive:          StatusArchived,
}

// ResultingStatus returns the status an accepted action of type t produces.
func ResultingStatus(t ActionType) (EventStatus, bool) {
	s, ok := statusEffects[t]
	return s, ok
}

// ChangesStatus reports whether t moves the record to a new status.
func ChangesStatus(t ActionType) bool {
	_, ok := statusEffects[t]
	return ok
}

var allowedFrom = map[ActionType][]EventStatus{
	ActionNotify:            {StatusInProgress, StatusRejected},
	ActionDeclare:           {StatusInProgress, StatusNotified, StatusRejected},
	ActionValidate:          {StatusDeclared, StatusNotified},
	ActionRegister:          {StatusDeclared, StatusValidated},
	ActionPrintCertificate:  {StatusRegistered, StatusCertified},
	ActionReject:            {StatusNotified, StatusDeclared, StatusValidated},
	ActionArchive:           {StatusInProgress, StatusNotified, StatusDeclared, StatusValidated, StatusRejected},
	ActionRequestCorrection: {StatusRegistered, StatusCertified},
}

// Permits reports whether an action of type t may be requested while the
// record is in status s. Types without a rule are allowed everywhere except
// on archived records.
func (s EventStatus) Permits(t ActionType) bool {
	allowed, ok := allowedFrom[t]
	if !ok {
		return s != StatusArchived
	}
	for _, candidate := range allowed {
		if candidate == s {
			return true
		}
	}
	return false
}
