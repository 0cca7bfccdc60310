package idgen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// ============================================================================
// 雪花算法 ID 生成器
// ============================================================================
//
// 【雪花算法结构】64位
//
//   0 - 41位时间戳 - 10位机器ID - 12位序列号
//   |   |            |            |
//   |   |            |            +-- 同一毫秒内的序列号（0-4095）
//   |   |            +-- 机器ID（0-1023）
//   |   +-- 毫秒级时间戳（可用约69年）
//   +-- 符号位，始终为0
//
// 流水号、转账单号由它生成，趋势递增便于索引。
// ============================================================================

const (
	epoch          = int64(1704067200000) // 起始时间戳（2024-01-01 00:00:00 UTC）
	workerIDBits   = 10                   // 机器ID位数
	sequenceBits   = 12                   // 序列号位数
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// AccountNumberLength 对外账户号长度
const AccountNumberLength = 10

// Snowflake 雪花算法ID生成器，并发安全
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
	now       func() time.Time
}

// New 创建生成器，workerID 必须在 0-1023 之间
func New(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("workerID 必须在 0-%d 之间", maxWorkerID)
	}
	return &Snowflake{workerID: workerID, now: time.Now}, nil
}

// Generate 生成ID
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixMilli()
	if now < s.timestamp {
		// 时钟回拨，沿用上次时间戳继续递增序列
		now = s.timestamp
	}

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// 序列号用完，等待下一毫秒
			for now <= s.timestamp {
				now = s.now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// TransactionNo 生成流水号
// 格式：TXN + 年月日时分秒 + 雪花ID，例如 TXN20240115143052_xxx
func (s *Snowflake) TransactionNo() string {
	return s.format("TXN")
}

// TransferNo 生成转账单号，两条腿共享
func (s *Snowflake) TransferNo() string {
	return s.format("TRF")
}

func (s *Snowflake) format(prefix string) string {
	id := s.Generate()
	return fmt.Sprintf("%s%s%019d", prefix, s.now().UTC().Format("20060102150405"), id)
}

// GenerateAccountNumber 生成 10 位数字账户号
// 随机生成，唯一性由存储层唯一索引保证，冲突时调用方重试
func GenerateAccountNumber() (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < AccountNumberLength; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("生成账户号失败: %w", err)
	}
	return fmt.Sprintf("%0*d", AccountNumberLength, n.Int64()), nil
}
