package services

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/promptcraft/promptcraft-chat/internal/models"
	bolt "go.etcd.io/bbolt"
)

// BoltDB implements the Store interface using a BoltDB backend for persistent storage of conversations, their
// messages and the custom prompts. Records are keyed by their sequence number, so iteration order is creation
// order.
type BoltDB struct {
	db *bolt.DB
}

var (
	conversationsBucket = []byte("conversations")
	messageIndexBucket  = []byte("message-index")
	promptsBucket       = []byte("prompts")
)

// NewBoltDB creates a new BoltDB instance with the specified file path. It initializes the database
// with required buckets and returns an error if the database cannot be opened or initialized. The
// database file is created with 0600 permissions if it doesn't exist.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{conversationsBucket, messageIndexBucket, promptsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return BoltDB{}, err
	}

	return BoltDB{db: db}, nil
}

// Close releases the database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}

func messageBucketName(conversationID []byte) []byte {
	return append([]byte("conversation-"), conversationID...)
}

// key converts a decimal identifier into its sortable key. Identifiers that were never issued return false.
func key(id string) ([]byte, bool) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil || n == 0 {
		return nil, false
	}
	return binary.BigEndian.AppendUint64(nil, n), true
}

func idOf(k []byte) models.ID {
	return models.ID(strconv.FormatUint(binary.BigEndian.Uint64(k), 10))
}

// Conversations retrieves the conversation summaries in reverse chronological order, skipping the first skip
// records and returning at most limit of them.
func (b BoltDB) Conversations(_ context.Context, skip, limit int) ([]models.ConversationSummary, error) {
	var convs []models.ConversationSummary
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(conversationsBucket).Cursor()
		return paginate(c.Last, c.Prev, skip, limit, func(_, v []byte) error {
			var conv models.ConversationSummary
			if err := json.Unmarshal(v, &conv); err != nil {
				return fmt.Errorf("failed to unmarshal conversation: %w", err)
			}
			convs = append(convs, conv)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// Conversation retrieves a conversation without its messages.
func (b BoltDB) Conversation(_ context.Context, id string) (models.Conversation, error) {
	k, ok := key(id)
	if !ok {
		return models.Conversation{}, models.ErrNotFound
	}

	var conv models.Conversation
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(conversationsBucket).Get(k)
		if v == nil {
			return models.ErrNotFound
		}
		if err := json.Unmarshal(v, &conv); err != nil {
			return fmt.Errorf("failed to unmarshal conversation: %w", err)
		}
		return nil
	})
	return conv, err
}

// AddConversation stores a new conversation and creates its message bucket. The stored conversation is
// returned with its assigned ID.
func (b BoltDB) AddConversation(_ context.Context, conv models.Conversation) (models.Conversation, error) {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(conversationsBucket)

		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}
		k := binary.BigEndian.AppendUint64(nil, seq)
		conv.ID = idOf(k)
		conv.Messages = nil

		if _, err := tx.CreateBucketIfNotExists(messageBucketName(k)); err != nil {
			return fmt.Errorf("failed to create message bucket: %w", err)
		}

		v, err := json.Marshal(conv)
		if err != nil {
			return fmt.Errorf("failed to marshal conversation: %w", err)
		}
		return bucket.Put(k, v)
	})
	if err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// DeleteConversation removes a conversation together with all its messages.
func (b BoltDB) DeleteConversation(_ context.Context, id string) error {
	k, ok := key(id)
	if !ok {
		return models.ErrNotFound
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		convs := tx.Bucket(conversationsBucket)
		if convs.Get(k) == nil {
			return models.ErrNotFound
		}

		if msgs := tx.Bucket(messageBucketName(k)); msgs != nil {
			index := tx.Bucket(messageIndexBucket)
			if err := msgs.ForEach(func(mk, _ []byte) error {
				return index.Delete(mk)
			}); err != nil {
				return fmt.Errorf("failed to unindex messages: %w", err)
			}
			if err := tx.DeleteBucket(messageBucketName(k)); err != nil {
				return fmt.Errorf("failed to delete message bucket: %w", err)
			}
		}

		return convs.Delete(k)
	})
}

// Messages retrieves the messages of a conversation in chronological order, skipping the first skip records
// and returning at most limit of them.
func (b BoltDB) Messages(_ context.Context, conversationID string, skip, limit int) ([]models.Message, error) {
	k, ok := key(conversationID)
	if !ok {
		return nil, models.ErrNotFound
	}

	var messages []models.Message
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(messageBucketName(k))
		if bucket == nil {
			return models.ErrNotFound
		}

		c := bucket.Cursor()
		return paginate(c.First, c.Next, skip, limit, func(_, v []byte) error {
			var message models.Message
			if err := json.Unmarshal(v, &message); err != nil {
				return fmt.Errorf("failed to unmarshal message: %w", err)
			}
			messages = append(messages, message)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Message retrieves a single message by its ID.
func (b BoltDB) Message(_ context.Context, id string) (models.Message, error) {
	k, ok := key(id)
	if !ok {
		return models.Message{}, models.ErrNotFound
	}

	var message models.Message
	err := b.db.View(func(tx *bolt.Tx) error {
		convKey := tx.Bucket(messageIndexBucket).Get(k)
		if convKey == nil {
			return models.ErrNotFound
		}
		bucket := tx.Bucket(messageBucketName(convKey))
		if bucket == nil {
			return models.ErrNotFound
		}
		v := bucket.Get(k)
		if v == nil {
			return models.ErrNotFound
		}
		if err := json.Unmarshal(v, &message); err != nil {
			return fmt.Errorf("failed to unmarshal message: %w", err)
		}
		return nil
	})
	return message, err
}

// AddMessage appends a message to the conversation. Message IDs are unique across conversations. The stored
// message is returned with its assigned ID.
func (b BoltDB) AddMessage(_ context.Context, conversationID string, message models.Message) (models.Message, error) {
	convKey, ok := key(conversationID)
	if !ok {
		return models.Message{}, models.ErrNotFound
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(messageBucketName(convKey))
		if bucket == nil {
			return models.ErrNotFound
		}
		index := tx.Bucket(messageIndexBucket)

		seq, err := index.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}
		k := binary.BigEndian.AppendUint64(nil, seq)
		message.ID = idOf(k)
		message.ConversationID = idOf(convKey)

		v, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if err := index.Put(k, convKey); err != nil {
			return fmt.Errorf("failed to index message: %w", err)
		}
		return bucket.Put(k, v)
	})
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}

// UpdateMessage replaces a stored message. The message keeps the conversation it was added to.
func (b BoltDB) UpdateMessage(_ context.Context, message models.Message) error {
	k, ok := key(message.ID.String())
	if !ok {
		return models.ErrNotFound
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		convKey := tx.Bucket(messageIndexBucket).Get(k)
		if convKey == nil {
			return models.ErrNotFound
		}
		bucket := tx.Bucket(messageBucketName(convKey))
		if bucket == nil || bucket.Get(k) == nil {
			return models.ErrNotFound
		}
		message.ConversationID = idOf(convKey)

		v, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		return bucket.Put(k, v)
	})
}

// Prompts retrieves the custom prompts in creation order, skipping the first skip records and returning at
// most limit of them.
func (b BoltDB) Prompts(_ context.Context, skip, limit int) ([]models.Prompt, error) {
	var prompts []models.Prompt
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(promptsBucket).Cursor()
		return paginate(c.First, c.Next, skip, limit, func(_, v []byte) error {
			var p models.Prompt
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("failed to unmarshal prompt: %w", err)
			}
			prompts = append(prompts, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return prompts, nil
}

// Prompt retrieves a single custom prompt.
func (b BoltDB) Prompt(_ context.Context, id string) (models.Prompt, error) {
	k, ok := key(id)
	if !ok {
		return models.Prompt{}, models.ErrNotFound
	}

	var p models.Prompt
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(promptsBucket).Get(k)
		if v == nil {
			return models.ErrNotFound
		}
		if err := json.Unmarshal(v, &p); err != nil {
			return fmt.Errorf("failed to unmarshal prompt: %w", err)
		}
		return nil
	})
	return p, err
}

// AddPrompt stores a new custom prompt. It returns models.ErrPromptNameTaken if another prompt has the same
// name.
func (b BoltDB) AddPrompt(_ context.Context, p models.Prompt) (models.Prompt, error) {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(promptsBucket)
		if err := checkPromptName(bucket, p.Name, nil); err != nil {
			return err
		}

		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}
		k := binary.BigEndian.AppendUint64(nil, seq)
		p.ID = idOf(k)

		v, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal prompt: %w", err)
		}
		return bucket.Put(k, v)
	})
	if err != nil {
		return models.Prompt{}, err
	}
	return p, nil
}

// UpdatePrompt replaces a stored custom prompt. It returns models.ErrPromptNameTaken if another prompt has the
// new name.
func (b BoltDB) UpdatePrompt(_ context.Context, p models.Prompt) (models.Prompt, error) {
	k, ok := key(p.ID.String())
	if !ok {
		return models.Prompt{}, models.ErrNotFound
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(promptsBucket)
		if bucket.Get(k) == nil {
			return models.ErrNotFound
		}
		if err := checkPromptName(bucket, p.Name, k); err != nil {
			return err
		}

		v, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal prompt: %w", err)
		}
		return bucket.Put(k, v)
	})
	if err != nil {
		return models.Prompt{}, err
	}
	return p, nil
}

// DeletePrompt removes a custom prompt.
func (b BoltDB) DeletePrompt(_ context.Context, id string) error {
	k, ok := key(id)
	if !ok {
		return models.ErrNotFound
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(promptsBucket)
		if bucket.Get(k) == nil {
			return models.ErrNotFound
		}
		return bucket.Delete(k)
	})
}

// checkPromptName fails if a prompt other than the one stored under self uses name.
func checkPromptName(bucket *bolt.Bucket, name string, self []byte) error {
	return bucket.ForEach(func(k, v []byte) error {
		if bytes.Equal(k, self) {
			return nil
		}
		var p models.Prompt
		if err := json.Unmarshal(v, &p); err != nil {
			return fmt.Errorf("failed to unmarshal prompt: %w", err)
		}
		if p.Name == name {
			return models.ErrPromptNameTaken
		}
		return nil
	})
}

// paginate walks a cursor from first using next, calling fn for every record after the first skip. A limit of
// zero or less means no limit.
func paginate(first, next func() ([]byte, []byte), skip, limit int, fn func(k, v []byte) error) error {
	n := 0
	for k, v := first(); k != nil; k, v = next() {
		if skip > 0 {
			skip--
			continue
		}
		if limit > 0 && n == limit {
			return nil
		}
		if err := fn(k, v); err != nil {
			return err
		}
		n++
	}
	return nil
}
