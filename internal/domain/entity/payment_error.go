package entity

// PaymentError represents an error that occurred while paying for a resource
type PaymentError struct {
	PayerAddress string
	Resource     string
	Network      string
	Scheme       string
	StatusCode   int    `json:"statusCode,omitempty" yaml:"statusCode,omitempty"`
	Message      string
}
