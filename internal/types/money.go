// README: Common money value object used across modules.
package types

// Money is an integer amount in the currency's smallest unit (paise for INR).
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func Rupees(paise int64) Money {
	return Money{Amount: paise, Currency: "INR"}
}

func (m Money) Add(o Money) Money {
	return Money{Amount: m.Amount + o.Amount, Currency: m.Currency}
}
