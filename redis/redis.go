package redis

import (
	"encoding/json"
	"fmt"
	"time"

	"gotokenbridge/config"
	"gotokenbridge/types"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var ErrDuplicateOperation = errors.New("relay operation already exists for source nonce")

// Store keeps relay operations and scan checkpoints in Redis
type Store struct {
	pool *redis.Pool
	log  log.Logger
}

func timeoutDialOptions() []redis.DialOption {
	return []redis.DialOption{
		redis.DialConnectTimeout(5 * time.Second),
		redis.DialReadTimeout(5 * time.Second),
		redis.DialWriteTimeout(5 * time.Second),
	}
}

func NewStore(host string, port int) *Store {
	redisAddr := fmt.Sprintf("%s:%d", host, port)
	return &Store{
		pool: &redis.Pool{
			MaxIdle:     5,
			IdleTimeout: 240 * time.Second,
			Dial:        func() (redis.Conn, error) { return redis.Dial("tcp", redisAddr, timeoutDialOptions()...) },
		},
		log: log.New("system", "redis"),
	}
}

// Ping checks connectivity, without persistence the bridge should not start
func (s *Store) Ping() error {
	conn := s.pool.Get()
	defer conn.Close()

	_, err := conn.Do("PING")
	return errors.Wrap(err, "redis ping")
}

func (s *Store) Close() error {
	return s.pool.Close()
}

func recordKey(status types.RelayStatus, id string) string {
	return fmt.Sprintf("relayop:%s:%s", status, id)
}

func nonceKey(sourceChain types.ChainID, nonce uint64) string {
	return fmt.Sprintf("relaynonce:%d:%d", sourceChain, nonce)
}

func scannedKey(chainID types.ChainID) string {
	return fmt.Sprintf("chainNonceScanned:%d", chainID)
}

func (s *Store) GetScannedNonce(chainID types.ChainID) (uint64, error) {
	conn := s.pool.Get()
	defer conn.Close()

	nonce, err := redis.Uint64(conn.Do("GET", scannedKey(chainID)))
	if err == nil {
		return nonce, nil
	}

	if errors.Is(err, redis.ErrNil) {
		return 0, nil
	}

	s.log.Error("Redis GET failed", "key", scannedKey(chainID), "err", err)
	return 0, err
}

func (s *Store) SetScannedNonce(chainID types.ChainID, nonce uint64) error {
	conn := s.pool.Get()
	defer conn.Close()

	_, err := conn.Do("SET", scannedKey(chainID), nonce)
	if err != nil {
		s.log.Error("Redis SET failed", "key", scannedKey(chainID), "err", err)
		return err
	}

	return nil
}

// createOperationScript claims the nonce index and writes the record and its
// status set entry in one step. An index whose id has no record under any
// status (ARGV[3..] are the record key prefixes) is left over from an
// interrupted write and gets reclaimed.
// Returns 0 when the nonce is taken, 1 when claimed, 2 when reclaimed.
var createOperationScript = redis.NewScript(3, `
local id = redis.call('GET', KEYS[1])
local reclaimed = 0
if id then
	for i = 3, #ARGV do
		if redis.call('EXISTS', ARGV[i] .. id) == 1 then
			return 0
		end
	end
	reclaimed = 1
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SET', KEYS[2], ARGV[2])
redis.call('SADD', KEYS[3], KEYS[2])
return 1 + reclaimed
`)

// CreateRelayOperation stores a new operation. One operation per (source chain, nonce):
// a second one fails with ErrDuplicateOperation, otherwise a record could be relayed twice
func (s *Store) CreateRelayOperation(op *types.RelayOperation) error {
	conn := s.pool.Get()
	defer conn.Close()

	if op == nil {
		return errors.New("null object to store")
	}

	if op.Status == "" {
		return errors.New("relay operation cannot have empty status")
	}

	if op.ID == "" {
		op.ID = uuid.New().String()
	}

	opJSON, err := json.Marshal(op)
	if err != nil {
		return errors.Wrap(err, "cannot marshal relay operation to JSON")
	}

	idxKey := nonceKey(op.SourceChain, op.Nonce)
	key := recordKey(op.Status, op.ID)
	args := []interface{}{idxKey, key, config.RedisStatusSets[op.Status], op.ID, opJSON}
	for _, status := range types.RelayStatuses {
		args = append(args, recordKey(status, ""))
	}

	res, err := redis.Int(createOperationScript.Do(conn, args...))
	if err != nil {
		s.log.Error("Redis create relay operation failed", "key", key, "err", err)
		return err
	}
	switch res {
	case 0:
		return ErrDuplicateOperation
	case 2:
		s.log.Warn("Reclaimed nonce index without a record", "key", idxKey, "id", op.ID)
	}

	return nil
}

// ChangeRelayOperationStatus moves op from prevStatus to op.Status, in one MULTI block
func (s *Store) ChangeRelayOperationStatus(op *types.RelayOperation, prevStatus types.RelayStatus) error {
	conn := s.pool.Get()
	defer conn.Close()

	if op == nil {
		return errors.New("null object to store")
	}

	if op.Status == "" || op.ID == "" {
		return errors.New("relay operation needs an id and a status")
	}

	prevRecordKey := recordKey(prevStatus, op.ID)
	key := recordKey(op.Status, op.ID)

	opJSON, err := json.Marshal(op)
	if err != nil {
		return errors.Wrap(err, "cannot marshal relay operation to JSON")
	}

	conn.Send("MULTI")
	conn.Send("SREM", config.RedisStatusSets[prevStatus], prevRecordKey)
	conn.Send("DEL", prevRecordKey)
	conn.Send("SET", key, opJSON)
	conn.Send("SADD", config.RedisStatusSets[op.Status], key)
	if _, err := conn.Do("EXEC"); err != nil {
		s.log.Error("Redis EXEC failed", "id", op.ID, "from", prevStatus, "to", op.Status, "err", err)
		return err
	}

	return nil
}

// FindRelayOperation returns nil, nil when the nonce was never relayed, or when
// its index survived an interrupted write without a record
func (s *Store) FindRelayOperation(sourceChain types.ChainID, nonce uint64) (*types.RelayOperation, error) {
	conn := s.pool.Get()
	defer conn.Close()

	id, err := redis.String(conn.Do("GET", nonceKey(sourceChain, nonce)))
	if errors.Is(err, redis.ErrNil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// the status is part of the key, try them all
	for _, status := range types.RelayStatuses {
		opJSON, err := redis.Bytes(conn.Do("GET", recordKey(status, id)))
		if errors.Is(err, redis.ErrNil) {
			continue
		}
		if err != nil {
			return nil, err
		}

		var op types.RelayOperation
		if err := json.Unmarshal(opJSON, &op); err != nil {
			return nil, errors.Wrapf(err, "relay operation %s", id)
		}
		return &op, nil
	}
	return nil, nil
}

func (s *Store) FindAllRelayOperationsByStatus(status types.RelayStatus) ([]*types.RelayOperation, error) {
	conn := s.pool.Get()
	defer conn.Close()

	if _, ok := config.RedisStatusSets[status]; !ok {
		return nil, errors.New("redis key not found for status")
	}

	ops := make([]*types.RelayOperation, 0)

	// scan every operation present in Redis
	var cursor int64

	for {
		values, err := redis.Values(conn.Do("SSCAN", config.RedisStatusSets[status], cursor))
		if err != nil {
			return nil, err
		}

		var opKeys []string
		_, err = redis.Scan(values, &cursor, &opKeys)
		if err != nil {
			return nil, err
		}

		for _, key := range opKeys {
			opJSON, err := redis.Bytes(conn.Do("GET", key))
			if errors.Is(err, redis.ErrNil) {
				// moved to another status between SSCAN and GET
				continue
			}
			if err != nil {
				s.log.Error("Redis GET failed", "key", key, "err", err)
				return nil, err
			}

			var op types.RelayOperation
			if err := json.Unmarshal(opJSON, &op); err != nil {
				return nil, err
			}
			if op.Status == status {
				ops = append(ops, &op)
			}
		}

		if cursor == 0 {
			break
		}
	}

	return ops, nil
}
