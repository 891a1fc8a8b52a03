package types

// ReceiptStatus reports the outcome of a submitted transaction.
type ReceiptStatus string

const (
	ReceiptStatusSuccess ReceiptStatus = "success"
	ReceiptStatusFailed  ReceiptStatus = "failed"
)

// ReceiptError describes why a program rejected an instruction.
type ReceiptError struct {
	Code    uint32 `json:"code"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Receipt is returned for every transaction that passes signature and nonce
// checks. Failed receipts carry no events and leave state untouched.
type Receipt struct {
	TxHash string        `json:"hash"`
	Status ReceiptStatus `json:"status"`
	Error  *ReceiptError `json:"error,omitempty"`
	Events []Event       `json:"events"`
}
