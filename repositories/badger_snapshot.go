package repositories

import (
	"encoding/json"
	"feedback-relay/domain"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

const (
	messagePrefix = "msg:"
	userPrefix    = "user:"
)

// BadgerSnapshotRepository stores one key per message and per user.
// Message keys are "msg:{unix_nano_padded}:{id}" so a prefix scan returns
// them in chronological order.
// Nothing is ever deleted from the state, so Save only upserts.
type BadgerSnapshotRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewBadgerSnapshotRepository(db *badger.DB, log *slog.Logger) *BadgerSnapshotRepository {
	return &BadgerSnapshotRepository{db: db, log: log}
}

func messageKey(message domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", messagePrefix, message.At.UnixNano(), message.ID))
}

func userKey(username string) []byte {
	return []byte(userPrefix + username)
}

// Save writes through a WriteBatch, which splits large snapshots over
// several transactions.
func (r *BadgerSnapshotRepository) Save(snapshot domain.Snapshot) error {
	wb := r.db.NewWriteBatch()
	defer wb.Cancel()
	for id, message := range snapshot.Messages {
		bytes, err := json.Marshal(fromMessage(message, snapshot.ReadBy[id]))
		if err != nil {
			return fmt.Errorf("encode message %s: %w", id, err)
		}
		if err = wb.Set(messageKey(message), bytes); err != nil {
			return err
		}
	}
	for name, profile := range snapshot.Users {
		bytes, err := json.Marshal(fromProfile(profile))
		if err != nil {
			return fmt.Errorf("encode user %s: %w", name, err)
		}
		if err = wb.Set(userKey(name), bytes); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (r *BadgerSnapshotRepository) Load() (domain.Snapshot, error) {
	messages := map[string]MessageDoc{}
	users := map[string]UserDoc{}
	err := r.db.View(func(txn *badger.Txn) error {
		if err := scan(txn, messagePrefix, func(_ string, value []byte) error {
			var doc MessageDoc
			if err := json.Unmarshal(value, &doc); err != nil {
				return err
			}
			messages[doc.ID] = doc
			return nil
		}); err != nil {
			return err
		}
		return scan(txn, userPrefix, func(key string, value []byte) error {
			var doc UserDoc
			if err := json.Unmarshal(value, &doc); err != nil {
				return err
			}
			users[key[len(userPrefix):]] = doc
			return nil
		})
	})
	if err != nil {
		return domain.Snapshot{}, err
	}
	snapshot := assemble(r.log, messages, users)
	r.log.Info("Snapshot loaded from badger", "messages", len(snapshot.Messages), "users", len(snapshot.Users))
	return snapshot, nil
}

func scan(txn *badger.Txn, prefix string, fn func(key string, value []byte) error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		item := it.Item()
		key := string(item.Key())
		if err := item.Value(func(value []byte) error {
			return fn(key, value)
		}); err != nil {
			return fmt.Errorf("read %s: %w", key, err)
		}
	}
	return nil
}
