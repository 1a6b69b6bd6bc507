package storage

import (
	"encoding"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// DBSession is the only state the client keeps between runs: who logged in
// and the token the auth service issued.
type DBSession struct {
	Username string `msgpack:"username"`
	Token    string `msgpack:"token"`
	SavedAt  int64  `msgpack:"savedAt"`
}

var currentSessionKey = []byte("current")

func (s *DBSession) Key() []byte {
	return currentSessionKey
}

func (s *DBSession) MarshalBinary() (data []byte, err error) {
	type alias DBSession
	return msgpack.Marshal((*alias)(s))
}

func (s *DBSession) UnmarshalBinary(data []byte) error {
	type alias DBSession
	return msgpack.Unmarshal(data, (*alias)(s))
}
