package service

import "encoding/json"

// mustJSON serializa payloads de feed. Los tipos involucrados son structs
// planos, asi que un fallo de marshal no es alcanzable en la practica.
func mustJSON(v interface{}) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
