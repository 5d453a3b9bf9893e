package domain

// NotificationTypeDirectMessage es el unico tipo que produce este nucleo.
const NotificationTypeDirectMessage = "direct_message"

// Notification es una alerta pendiente en la cola de entrega. Se crea junto
// al mensaje y se borra si el mensaje se lee antes de ser enviada.
type Notification struct {
	ID            string `json:"id"`
	Type          string `json:"notification_type"`
	RecipientID   string `json:"recipient_id"`
	RelatedItemID string `json:"related_item_id"`
	IsSent        bool   `json:"is_sent"`
}
