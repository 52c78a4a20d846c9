package driver

import "sync"

// keyLock serializes admission per stream and node
type keyLock struct {
	mux   sync.Mutex
	locks map[string]*entry
}

type entry struct {
	sync.Mutex
	refs int
}

func (l *keyLock) lock(key string) (unlock func()) {
	l.mux.Lock()
	if l.locks == nil {
		l.locks = map[string]*entry{}
	}
	e, ok := l.locks[key]
	if !ok {
		e = &entry{}
		l.locks[key] = e
	}
	e.refs++
	l.mux.Unlock()
	e.Lock()
	return func() {
		e.Unlock()
		l.mux.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, key)
		}
		l.mux.Unlock()
	}
}
