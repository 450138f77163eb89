package domain

// Participant is one member of the exchange. Email is the identity.
type Participant struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// PriorAssignment is a giver/recipient pair from the previous round.
type PriorAssignment struct {
	GiverName      string `json:"giver_name,omitempty"`
	GiverEmail     string `json:"giver_email"`
	RecipientName  string `json:"recipient_name,omitempty"`
	RecipientEmail string `json:"recipient_email"`
}

type Assignment struct {
	GiverName      string `json:"giver_name"`
	GiverEmail     string `json:"giver_email"`
	RecipientName  string `json:"recipient_name"`
	RecipientEmail string `json:"recipient_email"`
}

// Prior converts a generated assignment into next round's constraint.
func (a Assignment) Prior() PriorAssignment {
	return PriorAssignment{
		GiverName:      a.GiverName,
		GiverEmail:     a.GiverEmail,
		RecipientName:  a.RecipientName,
		RecipientEmail: a.RecipientEmail,
	}
}

type Run struct {
	ID                 string `json:"id"`
	CreatedAt          string `json:"created_at" format:"date-time"`
	ParticipantsSource string `json:"participants_source,omitempty"`
	PriorSource        string `json:"prior_source,omitempty"`
	OutputPath         string `json:"output_path,omitempty"`
	Attempts           int    `json:"attempts"`
	Repair             string `json:"repair" enum:"single-pass,fixed-point"`
	ParticipantCount   int    `json:"participant_count"`
}

type Event struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts" format:"date-time"`
	Type    string `json:"type"`
	RunID   string `json:"run_id,omitempty"`
	Payload string `json:"payload_json"`
}
