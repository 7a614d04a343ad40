package mediabuffer

// ReadyState is the lifecycle state reported by a Store.
type ReadyState string

const (
	StateClosed ReadyState = "closed"
	StateOpen   ReadyState = "open"
	StateEnded  ReadyState = "ended"
)

// MediaKind names one member of the store ("audio", "video", "text").
type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
	KindText  MediaKind = "text"
)

// StoreEventType enumerates store-level notifications.
type StoreEventType int

const (
	StoreOpened StoreEventType = iota
	StoreEnded
	StoreClosed
	MemberAdded
	MemberRemoved
)

// StoreEvent is delivered to Store subscribers. Member is set for
// MemberAdded and MemberRemoved.
type StoreEvent struct {
	Type   StoreEventType
	Member Member
}

// MemberEventType enumerates per-member notifications.
type MemberEventType int

const (
	MemberUpdateStart MemberEventType = iota
	MemberUpdateEnd
	MemberError
	MemberAbort
)

// MemberEvent is delivered to Member subscribers. ErrName and ErrMessage are
// set for MemberError.
type MemberEvent struct {
	Type       MemberEventType
	ErrName    string
	ErrMessage string
}

// Store is the platform buffer store the engine orchestrates. Mutating calls
// return only synchronous rejections; completion of AppendBuffer and Remove
// is reported later through member events. Notifications may be delivered
// from any goroutine.
type Store interface {
	ReadyState() ReadyState
	AddMember(kind MediaKind, codec string) (Member, error)
	RemoveMember(m Member) error
	Duration() float64
	SetDuration(d float64) error
	SetLiveSeekableRange(start, end float64) error
	EndOfStream() error
	Subscribe(fn func(StoreEvent)) (unsubscribe func())
}

// Member is one addressable component of a Store. At most one AppendBuffer
// or Remove may be outstanding; Updating reports whether one is.
type Member interface {
	Updating() bool
	AppendBuffer(data []byte) error
	Remove(start, end float64) error
	Abort() error
	ChangeType(codec string) error
	SetTimestampOffset(offset float64) error
	SetAppendWindow(start, end float64) error
	Buffered() TimeRanges
	Subscribe(fn func(MemberEvent)) (unsubscribe func())
}
