package types

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// field numbers of the persisted lock record
// numbers are never reused, unknown fields are skipped on decode so older
// clients can read records written by newer ones
const (
	fieldID            protowire.Number = 1
	fieldHolderHost    protowire.Number = 2
	fieldHolderUser    protowire.Number = 3
	fieldHolderPID     protowire.Number = 4
	fieldAcquiredAt    protowire.Number = 5 //unix nanos, zigzag
	fieldLastHeartbeat protowire.Number = 6 //unix nanos, zigzag
	fieldClientVersion protowire.Number = 7
	fieldSeq           protowire.Number = 8
)

// encodes a lock record in protobuf wire format
func MarshalLock(l *Lock) []byte {
	var b []byte
	b = appendString(b, fieldID, l.ID)
	b = appendString(b, fieldHolderHost, l.HolderHost)
	b = appendString(b, fieldHolderUser, l.HolderUser)
	b = protowire.AppendTag(b, fieldHolderPID, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(l.HolderPID)))
	b = appendTime(b, fieldAcquiredAt, l.AcquiredAt)
	b = appendTime(b, fieldLastHeartbeat, l.LastHeartbeat)
	b = appendString(b, fieldClientVersion, l.ClientVersion)
	b = protowire.AppendTag(b, fieldSeq, protowire.VarintType)
	b = protowire.AppendVarint(b, l.Seq)
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendTime(b []byte, num protowire.Number, t time.Time) []byte {
	if t.IsZero() {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(t.UnixNano()))
}

// decodes a lock record written by MarshalLock
func UnmarshalLock(b []byte) (*Lock, error) {
	l := &Lock{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("decode lock tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && isStringField(num):
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("decode lock field %d: %w", num, protowire.ParseError(n))
			}
			setString(l, num, v)
			b = b[n:]

		case typ == protowire.VarintType && isVarintField(num):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("decode lock field %d: %w", num, protowire.ParseError(n))
			}
			setVarint(l, num, v)
			b = b[n:]

		default:
			//unknown field, skip it
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("skip lock field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if l.ID == "" {
		return nil, fmt.Errorf("decode lock: missing record id")
	}
	return l, nil
}

func isStringField(num protowire.Number) bool {
	switch num {
	case fieldID, fieldHolderHost, fieldHolderUser, fieldClientVersion:
		return true
	}
	return false
}

func isVarintField(num protowire.Number) bool {
	switch num {
	case fieldHolderPID, fieldAcquiredAt, fieldLastHeartbeat, fieldSeq:
		return true
	}
	return false
}

func setString(l *Lock, num protowire.Number, v string) {
	switch num {
	case fieldID:
		l.ID = v
	case fieldHolderHost:
		l.HolderHost = v
	case fieldHolderUser:
		l.HolderUser = v
	case fieldClientVersion:
		l.ClientVersion = v
	}
}

func setVarint(l *Lock, num protowire.Number, v uint64) {
	switch num {
	case fieldHolderPID:
		l.HolderPID = int(protowire.DecodeZigZag(v))
	case fieldAcquiredAt:
		l.AcquiredAt = time.Unix(0, protowire.DecodeZigZag(v)).UTC()
	case fieldLastHeartbeat:
		l.LastHeartbeat = time.Unix(0, protowire.DecodeZigZag(v)).UTC()
	case fieldSeq:
		l.Seq = v
	}
}
