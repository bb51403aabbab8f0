package users

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"
)

var (
	usersBucket      = []byte("users")
	byUsernameBucket = []byte("users_by_username")
	byEmailBucket    = []byte("users_by_email")
)

// Store keeps users keyed by id with unique username and email indexes.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (or creates) the database file at path.
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{usersBucket, byUsernameBucket, byEmailBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Insert assigns u.ID and stores it. Username and email must both be unused.
func (s *Store) Insert(u *User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		users := tx.Bucket(usersBucket)
		byName := tx.Bucket(byUsernameBucket)
		byEmail := tx.Bucket(byEmailBucket)

		if byName.Get([]byte(u.Username)) != nil {
			return ErrUsernameTaken
		}
		if byEmail.Get([]byte(u.Email)) != nil {
			return ErrEmailTaken
		}

		seq, err := users.NextSequence()
		if err != nil {
			return err
		}
		u.ID = int64(seq)

		data, err := json.Marshal(u)
		if err != nil {
			return err
		}

		key := idKey(u.ID)
		if err := users.Put(key, data); err != nil {
			return err
		}
		if err := byName.Put([]byte(u.Username), key); err != nil {
			return err
		}
		return byEmail.Put([]byte(u.Email), key)
	})
}

func (s *Store) Get(id int64) (User, error) {
	var u User
	err := s.db.View(func(tx *bolt.Tx) error {
		return load(tx, idKey(id), &u)
	})
	return u, err
}

func (s *Store) GetByUsername(username string) (User, error) {
	var u User
	err := s.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(byUsernameBucket).Get([]byte(username))
		if key == nil {
			return ErrNotFound
		}
		return load(tx, key, &u)
	})
	return u, err
}

func load(tx *bolt.Tx, key []byte, u *User) error {
	v := tx.Bucket(usersBucket).Get(key)
	if v == nil {
		return ErrNotFound
	}
	return json.Unmarshal(v, u)
}

// idKey encodes ids big-endian so the bucket iterates in id order.
func idKey(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}
