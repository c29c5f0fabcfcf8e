package model

// Shop is the counterparty metadata for a shop chat session.
type Shop struct {
	ID     string `json:"_id"`
	Name   string `json:"shop_name"`
	Logo   string `json:"shop_logo,omitempty"`
	UserID string `json:"shop_userId,omitempty"`
}

// TargetUserID is the user id messages are addressed to. Older shop records
// carry no dedicated owner id and are addressed by the shop id itself.
func (s Shop) TargetUserID() string {
	if s.UserID != "" {
		return s.UserID
	}
	return s.ID
}
