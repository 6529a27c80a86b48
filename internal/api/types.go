package api

// ErrorResponse is the JSON body returned for rejected requests.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the JSON body of the health check.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
