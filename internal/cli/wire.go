package cli

import (
	"context"
	"fmt"

	"screenpilot/internal/agent"
	"screenpilot/internal/approval"
	"screenpilot/internal/audit"
	"screenpilot/internal/config"
	"screenpilot/internal/device"
	"screenpilot/internal/memory"
	"screenpilot/internal/policy"
	"screenpilot/internal/power"
	"screenpilot/internal/ratelimit"
	"screenpilot/internal/reasoner"
	"screenpilot/internal/router"
)

// session is a fully wired agent stack for one CLI invocation.
type session struct {
	cfg       *config.Config
	trail     *audit.Log
	approvals *approval.Store
	engine    *policy.Engine
	ctrl      device.Controller
	monitor   *power.Monitor
	mem       *memory.Store
	loop      *agent.Loop
}

// buildSession wires every subsystem from the session config. The
// returned session owns the audit log and memory store; call close.
func buildSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	policyCfg, policyHash, err := policy.LoadConfigWithHash(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	trail, err := audit.Open(cfg.AuditPath)
	if err != nil {
		return nil, fmt.Errorf("open audit trail: %w", err)
	}

	approvals, err := approval.NewStore(cfg.ApprovalDir)
	if err != nil {
		trail.Close()
		return nil, fmt.Errorf("open approval store: %w", err)
	}
	_ = approvals.Cleanup()

	engine := policy.NewEngine(policyCfg, ratelimit.New(cfg.RateLimit), approvals,
		policy.WithTrail(trail), policy.WithPolicyHash(policyHash))

	ctrl := device.NewADB(cfg.DeviceSerial)
	monitor := power.New(ctrl, cfg.BatteryThreshold)

	var mem *memory.Store
	if cfg.MemoryPath != "" {
		mem, err = memory.Open(cfg.MemoryPath, cfg.MemoryLimit)
		if err != nil {
			trail.Close()
			return nil, fmt.Errorf("open memory store: %w", err)
		}
	} else {
		mem = memory.New(cfg.MemoryLimit)
	}

	local, cloud, err := buildReasoners(ctx, cfg)
	if err != nil {
		trail.Close()
		mem.Close()
		return nil, err
	}

	rtr := router.New(local != nil, cloud != nil, router.WithTrail(trail))
	loop := agent.New(ctrl, rtr, local, cloud, engine, monitor, mem, trail, agent.Config{
		ObserveRetries: cfg.ObserveRetries,
		StopLiteral:    cfg.EmergencyKeyword,
		CallTimeout:    cfg.CallTimeout,
	})

	return &session{
		cfg:       cfg,
		trail:     trail,
		approvals: approvals,
		engine:    engine,
		ctrl:      ctrl,
		monitor:   monitor,
		mem:       mem,
		loop:      loop,
	}, nil
}

func buildReasoners(ctx context.Context, cfg *config.Config) (local, cloud reasoner.Reasoner, err error) {
	if cfg.Local.Configured() {
		local, err = buildReasoner(ctx, cfg.Local, reasoner.KindLocal)
		if err != nil {
			return nil, nil, fmt.Errorf("local reasoner: %w", err)
		}
	}
	if cfg.Cloud.Configured() {
		cloud, err = buildReasoner(ctx, cfg.Cloud, reasoner.KindCloud)
		if err != nil {
			return nil, nil, fmt.Errorf("cloud reasoner: %w", err)
		}
	}
	return local, cloud, nil
}

func buildReasoner(ctx context.Context, rc config.ReasonerConfig, kind reasoner.Kind) (reasoner.Reasoner, error) {
	switch rc.Provider {
	case "openai":
		return reasoner.NewOpenAI(reasoner.OpenAIConfig{
			APIURL: rc.APIURL,
			APIKey: rc.APIKey,
			Model:  rc.Model,
			Kind:   kind,
		}), nil
	case "bedrock":
		return reasoner.NewBedrock(ctx, rc.Region, rc.Model)
	default:
		return nil, fmt.Errorf("unknown reasoner provider %q", rc.Provider)
	}
}

func (s *session) close() {
	if s.mem != nil {
		_ = s.mem.Close()
	}
	if s.trail != nil {
		_ = s.trail.Close()
	}
}
