// Package directory 把外部身份 (fid) 解析为候选收款地址
package directory

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"settlement-core/pkg/cache"
	"settlement-core/pkg/logger"
	"settlement-core/pkg/monitor"
)

// ProfileClient 上游身份服务, 一次请求批量返回地址
type ProfileClient interface {
	FetchAddresses(ctx context.Context, fids []int64) (map[int64][]string, error)
}

// StakeReader 只读合约调用读取质押量
type StakeReader interface {
	ReadStake(ctx context.Context, contract, function, holder string) (*big.Int, error)
}

// StakeOrdering 指定用哪个合约函数给地址排序
type StakeOrdering struct {
	Contract string
	Function string
	Decimals int32
}

type Directory struct {
	profiles ProfileClient
	stakes   StakeReader
	cache    cache.Cache
	ttl      time.Duration
}

// NewDirectory cache 可以为 nil (不缓存)
func NewDirectory(profiles ProfileClient, stakes StakeReader, c cache.Cache, ttl time.Duration) *Directory {
	return &Directory{profiles: profiles, stakes: stakes, cache: c, ttl: ttl}
}

// ResolveAddresses 批量解析地址
// 上游整体失败时不返回错误, 只返回缓存里已有的结果, 由调用方逐个报告 "找不到地址"
func (d *Directory) ResolveAddresses(ctx context.Context, fids []int64, ordering *StakeOrdering) map[int64][]string {
	result := make(map[int64][]string, len(fids))

	// 1. 先查缓存
	var misses []int64
	seen := make(map[int64]bool, len(fids))
	for _, fid := range fids {
		if seen[fid] {
			continue
		}
		seen[fid] = true

		var cached []string
		if d.cache != nil && d.cache.Get(ctx, cacheKey(fid), &cached) == nil && len(cached) > 0 {
			result[fid] = cached
			continue
		}
		misses = append(misses, fid)
	}

	// 2. 未命中的一次性批量查询
	if len(misses) > 0 {
		fetched, err := d.profiles.FetchAddresses(ctx, misses)
		if err != nil {
			monitor.ObserveDirectoryFailure()
			logger.Warn("directory upstream lookup failed", zap.Int("fids", len(misses)), zap.Error(err))
		} else {
			for _, fid := range misses {
				addrs := normalize(fetched[fid])
				if len(addrs) == 0 {
					continue
				}
				result[fid] = addrs
				if d.cache != nil {
					if err := d.cache.Set(ctx, cacheKey(fid), addrs, d.ttl); err != nil {
						logger.Warn("directory cache set failed", zap.Int64("fid", fid), zap.Error(err))
					}
				}
			}
		}
	}

	// 3. 按质押量排序
	if ordering != nil && ordering.Contract != "" && d.stakes != nil {
		for fid, addrs := range result {
			result[fid] = d.orderByStake(ctx, addrs, *ordering)
		}
	}
	return result
}

// MeasureStake 累加该 fid 所有地址的质押量 (按代币精度换算为整币)
// 与 ResolveAddresses 不同, 上游失败或任一地址读取失败都直接返回错误, 不能把失败当成 0 质押
func (d *Directory) MeasureStake(ctx context.Context, fid int64, ordering StakeOrdering) (decimal.Decimal, error) {
	if ordering.Contract == "" || d.stakes == nil {
		return decimal.Zero, fmt.Errorf("no stake contract configured")
	}

	addrs, err := d.addressesOf(ctx, fid)
	if err != nil {
		return decimal.Zero, err
	}

	total := new(big.Int)
	for _, addr := range addrs {
		v, err := d.stakeOf(ctx, addr, ordering)
		if err != nil {
			return decimal.Zero, fmt.Errorf("read stake of %s: %w", addr, err)
		}
		total.Add(total, v)
	}
	return decimal.NewFromBigInt(total, -ordering.Decimals), nil
}

// addressesOf 单个 fid 的地址, 缓存优先, 上游错误原样返回
func (d *Directory) addressesOf(ctx context.Context, fid int64) ([]string, error) {
	var cached []string
	if d.cache != nil && d.cache.Get(ctx, cacheKey(fid), &cached) == nil && len(cached) > 0 {
		return cached, nil
	}

	fetched, err := d.profiles.FetchAddresses(ctx, []int64{fid})
	if err != nil {
		monitor.ObserveDirectoryFailure()
		return nil, fmt.Errorf("fetch addresses of fid %d: %w", fid, err)
	}
	addrs := normalize(fetched[fid])
	if len(addrs) > 0 && d.cache != nil {
		if err := d.cache.Set(ctx, cacheKey(fid), addrs, d.ttl); err != nil {
			logger.Warn("directory cache set failed", zap.Int64("fid", fid), zap.Error(err))
		}
	}
	return addrs, nil
}

func (d *Directory) orderByStake(ctx context.Context, addrs []string, ordering StakeOrdering) []string {
	if len(addrs) < 2 {
		return addrs
	}

	stakes := make(map[string]*big.Int, len(addrs))
	for _, addr := range addrs {
		stakes[addr] = d.readStake(ctx, addr, ordering)
	}

	ordered := append([]string(nil), addrs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return stakes[ordered[i]].Cmp(stakes[ordered[j]]) > 0
	})
	return ordered
}

// readStake 排序用, 单个地址读取失败按 0 处理, 地址保留
func (d *Directory) readStake(ctx context.Context, addr string, ordering StakeOrdering) *big.Int {
	v, err := d.stakeOf(ctx, addr, ordering)
	if err != nil {
		logger.Debug("stake lookup failed, treating as zero", zap.String("address", addr), zap.Error(err))
		return new(big.Int)
	}
	return v
}

func (d *Directory) stakeOf(ctx context.Context, addr string, ordering StakeOrdering) (*big.Int, error) {
	v, err := d.stakes.ReadStake(ctx, ordering.Contract, ordering.Function, addr)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return new(big.Int), nil
	}
	return v, nil
}

// normalize 去重 (大小写不敏感) 并丢弃非法地址, 保持原顺序
func normalize(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	seen := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if !common.IsHexAddress(a) {
			continue
		}
		key := strings.ToLower(a)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, common.HexToAddress(a).Hex())
	}
	return out
}

func cacheKey(fid int64) string {
	return fmt.Sprintf("directory:fid:%d", fid)
}
