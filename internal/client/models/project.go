package models

// Project is a construction project summary as returned by the backend.
// Projects are fetched per request and never cached locally.
type Project struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Status  string `json:"status"`
}
