package domain

// Deployment is the fixed wiring the ledger was started with: who administers it and
// which token and price feed it settles against.
type Deployment struct {
	Owner         string `json:"owner"`
	Token         string `json:"token"`
	PriceFeed     string `json:"price_feed"`
	ReferenceUnit string `json:"reference_unit"`
	EscrowAccount string `json:"escrow_account"`
	Treasury      string `json:"treasury"`
}
