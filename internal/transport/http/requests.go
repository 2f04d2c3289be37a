package httptransport

// AuthenticateRequest is the wire shape of one authentication attempt.
type AuthenticateRequest struct {
	ProfileID string      `json:"profile_id"`
	Segments  [][]float64 `json:"segments"`
	Subject   string      `json:"subject"`
	Secret    string      `json:"secret"`
}
