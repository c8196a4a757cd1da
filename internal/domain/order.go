package domain

import "time"

// OrderRef is the slice of a sales order the notification gateway needs.
// The host application owns the full record; callers pass this by value.
type OrderRef struct {
	Name           string `json:"name"`
	CustomerPhone  string `json:"customerPhone,omitempty"`
	CustomerMobile string `json:"customerMobile,omitempty"`
}

// ContactPhone returns the customer's phone, falling back to the mobile
// number when the phone field is empty.
func (o OrderRef) ContactPhone() string {
	if o.CustomerPhone != "" {
		return o.CustomerPhone
	}
	return o.CustomerMobile
}

// Attachment is a stored binary document associated with an order.
// Content holds the base64-encoded bytes, matching how the store persists it.
type Attachment struct {
	ID        string    `json:"id"`
	OrderName string    `json:"orderName"`
	Name      string    `json:"name"`
	MimeType  string    `json:"mimeType"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// ComposerForm is the ephemeral form backing one user-composed send.
// It lives for a single interaction and is never persisted.
type ComposerForm struct {
	Order         OrderRef `json:"order"`
	Phone         string   `json:"phone"`
	Message       string   `json:"message"`
	AttachmentIDs []string `json:"attachmentIds,omitempty"`
}
