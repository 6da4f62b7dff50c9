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

// DBCredential is the persisted form of the authenticated session.
type DBCredential struct {
	ID          string `msgpack:"id"`
	Username    string `msgpack:"username"`
	FullName    string `msgpack:"fullName"`
	CreatedAt   int64  `msgpack:"createdAt"`
	AccessToken string `msgpack:"accessToken"`
	ExpiresAt   int64  `msgpack:"expiresAt"`
}

func (c *DBCredential) Key() []byte {
	return currentSessionKey
}

func (c *DBCredential) MarshalBinary() (data []byte, err error) {
	type alias DBCredential
	return msgpack.Marshal((*alias)(c))
}

func (c *DBCredential) UnmarshalBinary(data []byte) error {
	type alias DBCredential
	return msgpack.Unmarshal(data, (*alias)(c))
}

// DBAvatar is a warm copy of a fetched avatar image, so a restart does not
// refetch every image before the first paint.
type DBAvatar struct {
	UserID      string `msgpack:"userId"`
	ContentType string `msgpack:"contentType"`
	Blob        []byte `msgpack:"blob"`
	FetchedAt   int64  `msgpack:"fetchedAt"`
}

func (a *DBAvatar) Key() []byte {
	return []byte(a.UserID)
}

func (a *DBAvatar) MarshalBinary() (data []byte, err error) {
	type alias DBAvatar
	return msgpack.Marshal((*alias)(a))
}

func (a *DBAvatar) UnmarshalBinary(data []byte) error {
	type alias DBAvatar
	return msgpack.Unmarshal(data, (*alias)(a))
}
