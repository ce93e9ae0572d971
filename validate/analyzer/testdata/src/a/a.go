package a

//chainrpc:expose
type Lobby struct{} // want `duplicate method names in Lobby: kick, players`

func (Lobby) Players() []string { return nil }

//chainrpc:name kick
func (*Lobby) Kick(name string) error { return nil }

//chainrpc:name kick
func (*Lobby) Ban(name string) error { return nil }

// Unexposed static functions do not collide.
//
//chainrpc:static Lobby
//chainrpc:name players
func lobbyPlayers() []string { return nil }

//chainrpc:expose static
type Fleet struct{} // want `duplicate method names in Fleet: node`

//chainrpc:name node
func (Fleet) Node(name string) *Node { return nil }

//chainrpc:static Fleet
//chainrpc:name node
func newNode(name string) *Node { return nil }

//chainrpc:static Fleet
func Size() int { return 0 }

//chainrpc:expose exclude=internal.*
type Node struct{}

//chainrpc:name internalStop
func (Node) Stop() {}

//chainrpc:name internalStop
func (Node) Halt() {}

//chainrpc:name stop
func (Node) Shutdown() {}

// Methods of types without a directive are not checked.
type Plain struct{}

//chainrpc:name x
func (Plain) A() {}

//chainrpc:name x
func (Plain) B() {}

//chainrpc:expose exclude=(
type Broken struct{} // want `type Broken: invalid exclude pattern`

//chainrpc:expose sorted
type Odd struct{} // want `type Odd: unknown expose option "sorted"`

//chainrpc:static Missing
func orphan() {} // want `static function orphan names unannotated type Missing`

//chainrpc:name
func (Node) Unnamed() {} // want `invalid exposed name "" for Unnamed`

type (
	//chainrpc:expose
	List[T any] struct{} // want `duplicate method names in List: get`
)

//chainrpc:name get
func (l *List[T]) Get(i int) T { var zero T; return zero }

//chainrpc:name get
func (l List[T]) At(i int) T { var zero T; return zero }
