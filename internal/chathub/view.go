package chathub

import (
	"couplesync/backend/internal/capsule"
	"couplesync/backend/internal/countdown"
	"couplesync/backend/internal/models"
)

// View is an immutable copy of everything the UI renders. A new View is built
// after every batch of events; nothing in it is shared with the loop.
type View struct {
	Role    models.Role `json:"role"`
	Partner models.Role `json:"partner"`
	RoomID  string      `json:"roomId"`

	PartnerOnline   bool                 `json:"partnerOnline"`
	PartnerKnown    bool                 `json:"partnerKnown"`
	PartnerLastSeen int64                `json:"partnerLastSeen,omitempty"`
	PartnerTyping   bool                 `json:"partnerTyping"`
	PartnerMood     *models.MoodRecord   `json:"partnerMood,omitempty"`
	PartnerStatus   *models.StatusRecord `json:"partnerStatus,omitempty"`
	MyMood          *models.MoodRecord   `json:"myMood,omitempty"`
	MyStatus        *models.StatusRecord `json:"myStatus,omitempty"`

	Messages []MessageView  `json:"messages"`
	Unread   int            `json:"unread"`
	Capsules []capsule.View `json:"capsules"`
	Todos    []TodoView     `json:"todos"`

	Anniversary *AnniversaryView `json:"anniversary,omitempty"`
	Cycle       *CycleView       `json:"cycle,omitempty"`

	UpdatedAt int64 `json:"updatedAt"`
}

type MessageView struct {
	ID string `json:"id"`
	models.Message
	Mine          bool `json:"mine"`
	ReadByPartner bool `json:"readByPartner"`
}

type TodoView struct {
	ID string `json:"id"`
	models.Todo
}

type AnniversaryView struct {
	models.AnniversaryAnchor
	Elapsed   countdown.Duration `json:"elapsed"`
	TotalDays int                `json:"totalDays"`
	Label     string             `json:"label"`
}

type CycleView struct {
	models.CycleAnchor
	Day    int    `json:"day"`
	Length int    `json:"length"`
	Label  string `json:"label"`
}

// ViewListener receives every new View. OnView is called from the session
// loop and must not block.
type ViewListener interface {
	OnView(v View)
}
