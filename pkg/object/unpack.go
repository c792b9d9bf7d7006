package object

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// UnpackOptions tunes UnpackPack.
type UnpackOptions struct {
	// BaseCacheSize bounds an in-memory cache of resolved objects used as
	// delta bases. Zero reads every base fresh from the store.
	BaseCacheSize int
	// Progress, when set, is called after each stored object.
	Progress func(done, total int)
}

// UnpackResult summarizes a completed unpack.
type UnpackResult struct {
	Objects int // objects written, full and resolved deltas
	Deltas  int // ref-delta records resolved
	Hashes  []Hash
}

type cachedObject struct {
	typ  ObjectType
	data []byte
}

type unpacker struct {
	store *Store
	cache *lru.Cache[Hash, cachedObject]
}

func (u *unpacker) base(h Hash) (ObjectType, []byte, error) {
	if u.cache != nil {
		if obj, ok := u.cache.Get(h); ok {
			return obj.typ, obj.data, nil
		}
	}
	return u.store.Read(h)
}

func (u *unpacker) put(objType ObjectType, data []byte) (Hash, error) {
	h, err := u.store.Write(objType, data)
	if err != nil {
		return h, err
	}
	if u.cache != nil {
		u.cache.Add(h, cachedObject{typ: objType, data: data})
	}
	return h, nil
}

// UnpackPack writes every record of pack into store. Full records are stored
// as-is; ref-delta records are resolved against their base, which may live in
// the store already or come earlier or later in the same pack, and stored with
// the base's kind. Records written before a failure stay in the store.
func UnpackPack(store *Store, pack *Pack, opts UnpackOptions) (*UnpackResult, error) {
	u := &unpacker{store: store}
	if opts.BaseCacheSize > 0 {
		cache, err := lru.New[Hash, cachedObject](opts.BaseCacheSize)
		if err != nil {
			return nil, fmt.Errorf("unpack: base cache: %w", err)
		}
		u.cache = cache
	}

	total := len(pack.Records)
	res := &UnpackResult{Hashes: make([]Hash, 0, total)}
	stored := func(h Hash) {
		res.Objects++
		res.Hashes = append(res.Hashes, h)
		if opts.Progress != nil {
			opts.Progress(res.Objects, total)
		}
	}

	var pending []*PackRecord
	for i := range pack.Records {
		rec := &pack.Records[i]
		if rec.IsDelta() {
			pending = append(pending, rec)
			continue
		}
		objType, ok := rec.Type.ObjectType()
		if !ok {
			return res, protocolErrorf("unpack: record at byte %d has type %s", rec.Offset, rec.Type)
		}
		h, err := u.put(objType, rec.Data)
		if err != nil {
			return res, fmt.Errorf("unpack %s at byte %d: %w", objType, rec.Offset, err)
		}
		stored(h)
	}

	// Deltas may depend on other deltas; resolve in rounds until no record
	// makes progress.
	for len(pending) > 0 {
		var deferred []*PackRecord
		for _, rec := range pending {
			objType, base, err := u.base(rec.BaseHash)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					deferred = append(deferred, rec)
					continue
				}
				return res, fmt.Errorf("unpack ref-delta at byte %d: base %s: %w", rec.Offset, rec.BaseHash, err)
			}
			target, err := ApplyDelta(base, rec.Data)
			if err != nil {
				return res, fmt.Errorf("unpack ref-delta at byte %d: %w", rec.Offset, err)
			}
			h, err := u.put(objType, target)
			if err != nil {
				return res, fmt.Errorf("unpack ref-delta at byte %d: %w", rec.Offset, err)
			}
			res.Deltas++
			stored(h)
		}
		if len(deferred) == len(pending) {
			rec := deferred[0]
			return res, fmt.Errorf("unpack ref-delta at byte %d: %w", rec.Offset, &NotFoundError{Hash: rec.BaseHash})
		}
		pending = deferred
	}
	return res, nil
}
