package kvstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/offlinedb/lib/codec"
	"github.com/ValentinKolb/offlinedb/lib/engine"
	"github.com/ValentinKolb/offlinedb/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("store")

const (
	// SchemaVersion is the version every database is opened at
	SchemaVersion uint64 = 1
	// CollectionName is the collection holding all records of a store
	CollectionName = "content"
	// KeyField is the key field of CollectionName
	KeyField = "key"
)

type storeImpl[T any] struct {
	name   string
	engine engine.IEngine
	codec  codec.ICodec[T]
	opts   Options

	metrics *storeMetrics

	// mu guards conn, state changes that touch conn happen under the write lock
	mu    sync.RWMutex
	conn  engine.IConn
	state atomic.Int32

	// settled is closed once the open sequence has finished, successful or not
	settled    chan struct{}
	settleOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a store for the database name in eng and starts opening it in the background.
// It returns immediately; operations wait until the database is open (see Options).
// The store must be closed with Close.
func New[T any](eng engine.IEngine, name string, c codec.ICodec[T], opts ...Option) store.IStore[T] {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &storeImpl[T]{
		name:    name,
		engine:  eng,
		codec:   c,
		opts:    o,
		settled: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.state.Store(int32(store.StateOpening))
	s.metrics = newStoreMetrics(o.Metrics, name, func() float64 {
		return float64(s.State())
	})

	s.wg.Add(1)
	go s.open()
	return s
}

// --------------------------------------------------------------------------
// Open sequence
// --------------------------------------------------------------------------

// upgrade creates the collection when the database is new
func upgrade(up engine.IUpgrade) error {
	if up.OldVersion() >= SchemaVersion {
		return nil
	}
	log.Infof("creating collection '%s' (schema version %d -> %d)", CollectionName, up.OldVersion(), up.NewVersion())
	return up.CreateCollection(CollectionName, KeyField)
}

// open runs the bounded open sequence. It never returns an error, a permanent failure
// is logged and leaves the store in StateFailed.
func (s *storeImpl[T]) open() {
	defer s.wg.Done()
	defer s.settle()

	var err error
	for attempt := 1; attempt <= s.opts.OpenAttempts; attempt++ {
		var conn engine.IConn
		conn, err = s.engine.Open(s.ctx, s.name, SchemaVersion, upgrade)
		if err == nil {
			if s.setConn(conn) {
				log.Infof("database '%s' open (%s, version %d)", s.name, s.engine.Implementation(), conn.Version())
				s.wg.Add(1)
				go s.watch(conn)
			}
			return
		}
		if s.ctx.Err() != nil {
			return
		}

		log.Warningf("failed to open database '%s': %v", s.name, err)
		if attempt == s.opts.OpenAttempts {
			break
		}
		log.Infof("retrying (%d/%d)", attempt+1, s.opts.OpenAttempts)

		timer := time.NewTimer(s.opts.OpenRetryDelay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	log.Errorf("could not open database '%s' after %d attempts: %v", s.name, s.opts.OpenAttempts, err)
	s.state.CompareAndSwap(int32(store.StateOpening), int32(store.StateFailed))
}

// setConn installs conn as the handle. If the store was closed in the meantime
// conn is closed and false is returned.
func (s *storeImpl[T]) setConn(conn engine.IConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CompareAndSwap(int32(store.StateOpening), int32(store.StateReady)) {
		_ = conn.Close()
		return false
	}
	s.conn = conn
	return true
}

func (s *storeImpl[T]) settle() {
	s.settleOnce.Do(func() {
		close(s.settled)
	})
}

// watch invalidates the handle as soon as the engine closes the connection or
// another connection asks for a version change.
func (s *storeImpl[T]) watch(conn engine.IConn) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-conn.Events():
			if !ok {
				s.invalidate(conn, "connection closed")
				return
			}
			switch ev.Type {
			case engine.EventVersionChange:
				s.invalidate(conn, fmt.Sprintf("versionchange (%d -> %d)", ev.OldVersion, ev.NewVersion))
				return
			case engine.EventClose:
				s.invalidate(conn, "closed")
				return
			}
		}
	}
}

// invalidate drops conn as handle and closes it. The store moves to StateFailed
// unless it was closed or conn is no longer the handle.
func (s *storeImpl[T]) invalidate(conn engine.IConn, reason string) {
	s.mu.Lock()
	current := s.conn == conn
	if current {
		s.conn = nil
		s.state.CompareAndSwap(int32(store.StateReady), int32(store.StateFailed))
	}
	s.mu.Unlock()

	if current {
		log.Errorf("database '%s' %s, store is no longer usable", s.name, reason)
	}
	if err := conn.Close(); err != nil {
		log.Warningf("failed to close database '%s': %v", s.name, err)
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl[T]) Save(ctx context.Context, key string, value T) (err error) {
	defer s.metrics.observe(opSave, time.Now(), &err)

	conn, err := s.waitForReady(ctx)
	if err != nil {
		return err
	}
	data, err := s.codec.Encode(value)
	if err != nil {
		return store.WrapError(store.RetCCodec, fmt.Sprintf("unable to encode value for key '%s' with codec %s", key, s.codec.Name()), err)
	}
	return conn.Transact(ctx, CollectionName, engine.ModeReadWrite, func(tx engine.ITx) error {
		return tx.Put(engine.Record{Key: key, Value: data})
	})
}

func (s *storeImpl[T]) Get(ctx context.Context, key string) (value T, found bool, err error) {
	defer s.metrics.observe(opGet, time.Now(), &err)

	conn, err := s.waitForReady(ctx)
	if err != nil {
		return value, false, err
	}
	var rec engine.Record
	err = conn.Transact(ctx, CollectionName, engine.ModeReadOnly, func(tx engine.ITx) error {
		var err error
		rec, found, err = tx.Get(key)
		return err
	})
	if err != nil || !found {
		return value, false, err
	}
	value, err = s.codec.Decode(rec.Value)
	if err != nil {
		var zero T
		return zero, false, store.WrapError(store.RetCCodec, fmt.Sprintf("unable to decode value of key '%s' with codec %s", key, s.codec.Name()), err)
	}
	return value, true, nil
}

func (s *storeImpl[T]) Delete(ctx context.Context, key string) (err error) {
	defer s.metrics.observe(opDelete, time.Now(), &err)

	conn, err := s.waitForReady(ctx)
	if err != nil {
		return err
	}
	return conn.Transact(ctx, CollectionName, engine.ModeReadWrite, func(tx engine.ITx) error {
		return tx.Delete(key)
	})
}

func (s *storeImpl[T]) List(ctx context.Context) (keys []string, err error) {
	defer s.metrics.observe(opList, time.Now(), &err)

	conn, err := s.waitForReady(ctx)
	if err != nil {
		return nil, err
	}
	err = conn.Transact(ctx, CollectionName, engine.ModeReadOnly, func(tx engine.ITx) error {
		var err error
		keys, err = tx.GetAllKeys()
		return err
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *storeImpl[T]) Clear(ctx context.Context) (err error) {
	defer s.metrics.observe(opClear, time.Now(), &err)

	keys, err := s.List(ctx)
	if err != nil {
		return err
	}
	for i, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			log.Warningf("clear of database '%s' stopped after %d of %d keys: %v", s.name, i, len(keys), err)
			return err
		}
	}
	return nil
}

func (s *storeImpl[T]) Truncate(ctx context.Context) (err error) {
	defer s.metrics.observe(opTruncate, time.Now(), &err)

	conn, err := s.waitForReady(ctx)
	if err != nil {
		return err
	}
	if tr, ok := conn.(engine.ITruncater); ok {
		return tr.Truncate(ctx, CollectionName)
	}
	return conn.Transact(ctx, CollectionName, engine.ModeReadWrite, func(tx engine.ITx) error {
		return tx.Clear()
	})
}

func (s *storeImpl[T]) Info(ctx context.Context) (info store.Info, err error) {
	defer s.metrics.observe(opInfo, time.Now(), &err)

	conn, err := s.waitForReady(ctx)
	if err != nil {
		return info, err
	}
	info = store.Info{
		Name:       s.name,
		Engine:     s.engine.Implementation(),
		Version:    conn.Version(),
		Collection: CollectionName,
	}
	err = conn.Transact(ctx, CollectionName, engine.ModeReadOnly, func(tx engine.ITx) error {
		keys, err := tx.GetAllKeys()
		info.Keys = len(keys)
		return err
	})
	return info, err
}

func (s *storeImpl[T]) State() store.State {
	return store.State(s.state.Load())
}

func (s *storeImpl[T]) Close() (err error) {
	s.mu.Lock()
	if s.State() == store.StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state.Store(int32(store.StateClosed))
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	// stops a running open sequence and the watcher
	s.cancel()
	s.wg.Wait()
	s.settle()

	if conn != nil {
		err = conn.Close()
	}
	log.Debugf("store '%s' closed", s.name)
	return err
}
