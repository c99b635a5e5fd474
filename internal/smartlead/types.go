package smartlead

// Lead is the remote lead record, reduced to the fields this service uses.
type Lead struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// CreateLeadRequest creates a remote lead. Segment travels as a custom
// field so campaign filters can target it.
type CreateLeadRequest struct {
	Email        string            `json:"email"`
	FirstName    string            `json:"first_name"`
	LastName     string            `json:"last_name"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

type listResponse struct {
	Data []Lead `json:"data"`
}

type createResponse struct {
	Data struct {
		ID int64 `json:"id"`
	} `json:"data"`
}

type categoryRequest struct {
	CategoryName string `json:"category_name"`
}

type bulkLeadsRequest struct {
	Leads []CreateLeadRequest `json:"leads"`
}

type campaignLeadsRequest struct {
	LeadList []CreateLeadRequest `json:"lead_list"`
}
