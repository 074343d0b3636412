package models

import "time"

// PaymentSession is a checkout handed to the payment gateway.
type PaymentSession struct {
	TxnID     string    `json:"txnid"`
	Alias     string    `json:"alias"`
	Amount    string    `json:"amount"`
	Plan      string    `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
}
