package orchestrator

import (
	communicationdomain "github.com/smallbiznis/cashapp/internal/communication/domain"
	communicatordomain "github.com/smallbiznis/cashapp/internal/communicator/domain"
)

// communicationdomainStatus translates the Communicator's delivery status
// into the Audit Store's CommunicationEvent status vocabulary; both mirror
// spec.md §3's delivery_status enum, so Sent, Delivered and Failed map one
// to one and any other value, including an empty status, becomes Queued.
func communicationdomainStatus(status communicatordomain.DeliveryStatus) communicationdomain.DeliveryStatus {
	switch status {
	case communicatordomain.DeliverySent:
		return communicationdomain.DeliverySent
	case communicatordomain.DeliveryDelivered:
		return communicationdomain.DeliveryDelivered
	case communicatordomain.DeliveryFailed:
		return communicationdomain.DeliveryFailed
	default:
		return communicationdomain.DeliveryQueued
	}
}

func communicationRecordRequest(transactionID string, kind communicatordomain.Kind, template, recipient string, data map[string]any, status communicationdomain.DeliveryStatus, deliveryErr *string) communicationdomain.RecordCommunicationRequest {
	txnID := transactionID
	return communicationdomain.RecordCommunicationRequest{
		TransactionID:  &txnID,
		Kind:           communicationdomain.Kind(kind),
		Template:       template,
		Recipient:      recipient,
		Payload:        data,
		DeliveryStatus: status,
		Error:          deliveryErr,
	}
}
