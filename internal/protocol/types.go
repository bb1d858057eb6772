package protocol

// Type identifies a packet on the wire.
type Type uint8

// Client-to-server request packets.
const (
	TypeNone Type = iota
	TypeLogin
	TypeUsers
	TypeInvite
	TypeRevoke
	TypeDecline
	TypeAccept
	TypeMove
	TypeResign
)

// Server-to-client packets. ACK and NACK answer the initiator; the rest are
// asynchronous notifications to the affected peer.
const (
	TypeAck Type = iota + 9
	TypeNack
	TypeInvited
	TypeRevoked
	TypeAccepted
	TypeDeclined
	TypeMoved
	TypeResigned
	TypeEnded
)

func (t Type) String() string {
	switch t {
	case TypeLogin:
		return "LOGIN"
	case TypeUsers:
		return "USERS"
	case TypeInvite:
		return "INVITE"
	case TypeRevoke:
		return "REVOKE"
	case TypeDecline:
		return "DECLINE"
	case TypeAccept:
		return "ACCEPT"
	case TypeMove:
		return "MOVE"
	case TypeResign:
		return "RESIGN"
	case TypeAck:
		return "ACK"
	case TypeNack:
		return "NACK"
	case TypeInvited:
		return "INVITED"
	case TypeRevoked:
		return "REVOKED"
	case TypeAccepted:
		return "ACCEPTED"
	case TypeDeclined:
		return "DECLINED"
	case TypeMoved:
		return "MOVED"
	case TypeResigned:
		return "RESIGNED"
	case TypeEnded:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}
