package events

// Topics emitted by the billing service.
const (
	TopicBillCreated = "bill.created"
	TopicBillUpdated = "bill.updated"
	TopicBillDeleted = "bill.deleted"

	TopicPaymentCreated = "payment.created"
	TopicPaymentUpdated = "payment.updated"
	TopicPaymentDeleted = "payment.deleted"
)

// BillTopics lists every bill lifecycle topic.
func BillTopics() []string {
	return []string{TopicBillCreated, TopicBillUpdated, TopicBillDeleted}
}

// IsBillTopic reports whether topic belongs to the bill lifecycle.
func IsBillTopic(topic string) bool {
	for _, t := range BillTopics() {
		if t == topic {
			return true
		}
	}
	return false
}
