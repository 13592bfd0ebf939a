package proxywallet

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"polytrade/internal/metrics"
	"polytrade/internal/models"
	"polytrade/internal/repository"
)

const cacheTTL = 60 * time.Second

// ContractChecker reports whether code exists at an address.
type ContractChecker interface {
	IsContract(ctx context.Context, addr common.Address) (bool, error)
}

// Deployer deploys a proxy wallet for an owner and blocks until it lands.
// The derived proxy address is passed along so the deploying side can verify
// its own derivation against it.
type Deployer interface {
	Deploy(ctx context.Context, owner, proxy string) error
}

// Wallet is the resolved proxy wallet state for one owner.
type Wallet struct {
	Owner    common.Address
	Address  common.Address
	Deployed bool
}

type cacheEntry struct {
	wallet    Wallet
	checkedAt time.Time
}

// fresh reports whether the entry can be served without an on-chain check.
// A deployed wallet never goes back to undeployed, so a positive entry is
// good forever; a negative one only within the TTL.
func (e cacheEntry) fresh(now time.Time) bool {
	if e.wallet.Deployed {
		return true
	}
	return now.Sub(e.checkedAt) < cacheTTL
}

// Resolver derives proxy wallet addresses deterministically and tracks their
// deployment state. Concurrent resolutions for the same owner collapse into
// one chain lookup.
type Resolver struct {
	Factory      common.Address
	InitCodeHash common.Hash
	Chain        ContractChecker
	Deployer     Deployer
	Repo         repository.Repository
	Logger       *zap.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
	group singleflight.Group
}

// Derive computes the CREATE2 proxy wallet address for an owner. It is a pure
// function of the factory, the init code hash, and the owner.
func (r *Resolver) Derive(owner common.Address) common.Address {
	salt := crypto.Keccak256Hash(common.LeftPadBytes(owner.Bytes(), 32))
	return crypto.CreateAddress2(r.Factory, salt, r.InitCodeHash.Bytes())
}

// Resolve returns the proxy wallet for owner, consulting the cache, the
// permanent record, and finally the chain.
func (r *Resolver) Resolve(ctx context.Context, owner common.Address) (Wallet, error) {
	key := strings.ToLower(owner.Hex())
	now := time.Now()

	r.mu.Lock()
	if entry, ok := r.cache[key]; ok && entry.fresh(now) {
		r.mu.Unlock()
		metrics.ProxyResolutions.WithLabelValues("cache").Inc()
		return entry.wallet, nil
	}
	r.mu.Unlock()

	result, err, _ := r.group.Do(key, func() (any, error) {
		return r.resolveSlow(ctx, owner)
	})
	if err != nil {
		return Wallet{}, err
	}
	return result.(Wallet), nil
}

func (r *Resolver) resolveSlow(ctx context.Context, owner common.Address) (Wallet, error) {
	key := strings.ToLower(owner.Hex())
	wallet := Wallet{Owner: owner, Address: r.Derive(owner)}

	// The permanent record short-circuits the chain for known-deployed wallets.
	if r.Repo != nil {
		if rec, err := r.Repo.GetProxyWallet(ctx, key); err == nil && rec != nil && rec.Deployed {
			wallet.Address = common.HexToAddress(rec.ProxyAddress)
			wallet.Deployed = true
			r.store(key, wallet)
			metrics.ProxyResolutions.WithLabelValues("record").Inc()
			return wallet, nil
		}
	}

	deployed, err := r.Chain.IsContract(ctx, wallet.Address)
	if err != nil {
		return Wallet{}, fmt.Errorf("deployment check failed: %w", err)
	}
	wallet.Deployed = deployed

	r.persist(ctx, key, wallet)
	r.store(key, wallet)
	metrics.ProxyResolutions.WithLabelValues("chain").Inc()
	return wallet, nil
}

// EnsureDeployed resolves the owner's proxy wallet and deploys it through the
// relay when missing. Concurrent callers for the same owner share one deploy.
func (r *Resolver) EnsureDeployed(ctx context.Context, owner common.Address) (Wallet, error) {
	wallet, err := r.Resolve(ctx, owner)
	if err != nil {
		return Wallet{}, err
	}
	if wallet.Deployed {
		return wallet, nil
	}
	if r.Deployer == nil {
		return Wallet{}, fmt.Errorf("proxy wallet %s not deployed and no deployer configured", wallet.Address.Hex())
	}

	key := "deploy:" + strings.ToLower(owner.Hex())
	result, err, _ := r.group.Do(key, func() (any, error) {
		return r.deploySlow(ctx, owner, wallet)
	})
	if err != nil {
		return Wallet{}, err
	}
	return result.(Wallet), nil
}

func (r *Resolver) deploySlow(ctx context.Context, owner common.Address, wallet Wallet) (Wallet, error) {
	// Another caller may have deployed while we waited on the flight.
	deployed, err := r.Chain.IsContract(ctx, wallet.Address)
	if err == nil && deployed {
		wallet.Deployed = true
	} else {
		if r.Logger != nil {
			r.Logger.Info("deploying proxy wallet",
				zap.String("owner", strings.ToLower(owner.Hex())),
				zap.String("proxy", wallet.Address.Hex()))
		}
		if err := r.Deployer.Deploy(ctx, owner.Hex(), wallet.Address.Hex()); err != nil {
			return Wallet{}, fmt.Errorf("proxy wallet deployment failed: %w", err)
		}
		wallet.Deployed = true
	}

	key := strings.ToLower(owner.Hex())
	r.persist(ctx, key, wallet)
	r.store(key, wallet)
	return wallet, nil
}

func (r *Resolver) store(key string, wallet Wallet) {
	r.mu.Lock()
	if r.cache == nil {
		r.cache = make(map[string]cacheEntry)
	}
	// Deployment is monotonic: never overwrite a deployed entry with an
	// undeployed one from a racing slow path.
	if prev, ok := r.cache[key]; ok && prev.wallet.Deployed && !wallet.Deployed {
		r.mu.Unlock()
		return
	}
	r.cache[key] = cacheEntry{wallet: wallet, checkedAt: time.Now()}
	r.mu.Unlock()
}

func (r *Resolver) persist(ctx context.Context, key string, wallet Wallet) {
	if r.Repo == nil {
		return
	}
	rec := &models.ProxyWallet{
		OwnerAddress: key,
		ProxyAddress: wallet.Address.Hex(),
		Deployed:     wallet.Deployed,
		CheckedAt:    time.Now().UTC(),
	}
	if err := r.Repo.UpsertProxyWallet(ctx, rec); err != nil && r.Logger != nil {
		r.Logger.Warn("proxy wallet record upsert failed", zap.Error(err))
	}
	if wallet.Deployed {
		if err := r.Repo.MarkProxyWalletDeployed(ctx, key); err != nil && r.Logger != nil {
			r.Logger.Warn("proxy wallet deployed mark failed", zap.Error(err))
		}
	}
}

// Sweep evicts stale undeployed entries. Deployed entries stay.
func (r *Resolver) Sweep() {
	now := time.Now()
	r.mu.Lock()
	for key, entry := range r.cache {
		if !entry.fresh(now) {
			delete(r.cache, key)
		}
	}
	r.mu.Unlock()
}
