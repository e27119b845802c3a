package rendezvous

import (
	"sort"
	"sync"
	"time"

	"github.com/dep2p/go-rendezvous/pkg/types"
)

// ============================================================================
//                              命名空间分片
// ============================================================================

// regEntry 带序号的注册记录
type regEntry struct {
	seq uint64
	reg Registration
}

// orderEntry 枚举顺序表项
type orderEntry struct {
	seq  uint64
	peer types.PeerID
}

// nsShard 单个命名空间的分片
//
// regs 为主表，order 为按序号递增的枚举顺序表（插入序）。
// 注销与过期不立即从 order 移除，仅累计 deadSlots，枚举时按
// regs 中的序号比对跳过陈旧项；陈旧项过半时压实。压实保留序号，
// 游标以序号而非下标定位，因此对进行中的游标链透明。
//
// gen 为创建时分配的代纪号，分片回收后同名命名空间将获得新代纪，
// 旧游标据此失效。
type nsShard struct {
	ns  string
	gen uint64

	mu        sync.RWMutex
	dead      bool
	nextSeq   uint64
	regs      map[types.PeerID]*regEntry
	order     []orderEntry
	deadSlots int

	// pmu 串行化本分片的后端写入。在持有 mu 期间获取、
	// 释放 mu 之后持有到后端写完成，使落盘顺序与内存生效顺序一致。
	pmu sync.Mutex
}

func newNsShard(ns string, gen uint64) *nsShard {
	return &nsShard{
		ns:   ns,
		gen:  gen,
		regs: make(map[types.PeerID]*regEntry),
	}
}

// enumerateLocked 从 startSeq 起枚举最多 limit 条存活记录
//
// 需持有 sh.mu 读锁。返回结果页、页内最后一条的序号，以及
// 其后是否还存在存活记录（决定是否签发后续游标）。
func (sh *nsShard) enumerateLocked(startSeq uint64, limit int, now time.Time) ([]Registration, uint64, bool) {
	// order 按序号递增，二分定位起点
	start := sort.Search(len(sh.order), func(i int) bool {
		return sh.order[i].seq >= startSeq
	})

	var (
		regs    []Registration
		lastSeq uint64
		more    bool
	)
	for i := start; i < len(sh.order); i++ {
		oe := sh.order[i]
		entry, exists := sh.regs[oe.peer]
		if !exists || entry.seq != oe.seq || entry.reg.Expired(now) {
			continue
		}
		if len(regs) == limit {
			more = true
			break
		}
		regs = append(regs, entry.reg)
		lastSeq = oe.seq
	}
	return regs, lastSeq, more
}

// maybeCompact 陈旧槽位过半时压实顺序表
//
// 需持有 sh.mu 写锁。
func (sh *nsShard) maybeCompact() {
	if len(sh.order) < compactThreshold || sh.deadSlots*2 < len(sh.order) {
		return
	}
	live := make([]orderEntry, 0, len(sh.regs))
	for _, oe := range sh.order {
		if entry, exists := sh.regs[oe.peer]; exists && entry.seq == oe.seq {
			live = append(live, oe)
		}
	}
	sh.order = live
	sh.deadSlots = 0
}

// compactThreshold 顺序表压实的最小长度
const compactThreshold = 64
