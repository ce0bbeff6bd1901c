package models

// DefaultRoomID is the room shared by the participant pair unless overridden.
const DefaultRoomID = "couple_room_001"

// Paths builds the room-scoped key space. Every record lives under rooms/<room>/.
type Paths struct {
	Room string
}

// NewPaths returns the path layout for roomID.
func NewPaths(roomID string) Paths {
	if roomID == "" {
		roomID = DefaultRoomID
	}
	return Paths{Room: roomID}
}

func (p Paths) root() string { return "rooms/" + p.Room }

func (p Paths) Presence(r Role) string { return p.root() + "/presence/" + string(r) }
func (p Paths) Mood(r Role) string     { return p.root() + "/mood/" + string(r) }
func (p Paths) Status(r Role) string   { return p.root() + "/status/" + string(r) }
func (p Paths) Typing(r Role) string   { return p.root() + "/typing/" + string(r) }

func (p Paths) Messages() string         { return p.root() + "/messages" }
func (p Paths) Message(id string) string { return p.Messages() + "/" + id }

func (p Paths) Todos() string         { return p.root() + "/todos" }
func (p Paths) Todo(id string) string { return p.Todos() + "/" + id }

func (p Paths) Capsules() string         { return p.root() + "/capsules" }
func (p Paths) Capsule(id string) string { return p.Capsules() + "/" + id }

func (p Paths) Anniversary() string { return p.root() + "/anchors/anniversary" }
func (p Paths) Cycle() string       { return p.root() + "/anchors/cycle" }
