package a

// Methods declared in another file count toward the same type.
//
//chainrpc:name players
func (Lobby) Roster() []string { return nil }
