package syncjob

import "net/http"

// Definition describes one batch synchronisation between two systems.
// Paths may contain {id}, replaced with the item id.
type Definition struct {
	Type        string `json:"type"`
	Source      string `json:"source"`
	Target      string `json:"target"`
	FetchPath   string `json:"fetch_path"`
	PushMethod  string `json:"push_method"`
	PushPath    string `json:"push_path"`
	ConfirmPath string `json:"confirm_path"`
	IDField     string `json:"id_field"`
}

func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Type:        "crm_to_operacao",
			Source:      "crm",
			Target:      "operacao",
			FetchPath:   "/api/schedules/pending",
			PushMethod:  http.MethodPost,
			PushPath:    "/api/schedules",
			ConfirmPath: "/api/schedules/{id}/synced",
			IDField:     "id",
		},
		{
			Type:        "operacao_to_financeiro",
			Source:      "operacao",
			Target:      "financeiro",
			FetchPath:   "/api/services/completed",
			PushMethod:  http.MethodPost,
			PushPath:    "/api/invoices",
			ConfirmPath: "/api/services/{id}/invoiced",
			IDField:     "id",
		},
		{
			Type:        "cuidadores_to_operacao",
			Source:      "cuidadores",
			Target:      "operacao",
			FetchPath:   "/api/caregivers/updated",
			PushMethod:  http.MethodPut,
			PushPath:    "/api/caregivers/{id}/availability",
			ConfirmPath: "/api/caregivers/{id}/synced",
			IDField:     "id",
		},
	}
}
