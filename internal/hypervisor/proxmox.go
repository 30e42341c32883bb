package hypervisor

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/luthermonson/go-proxmox"
	"go.uber.org/zap"

	apperrors "provinator.io/provinator/internal/pkg/errors"
	"provinator.io/provinator/internal/pkg/logger"
)

// ProxmoxOptions configures a Proxmox VE connection (API token auth).
type ProxmoxOptions struct {
	Host       string
	TokenID    string
	TokenValue string
	VerifySSL  bool
}

// ProxmoxDriver speaks the Proxmox VE API. One driver serves one cluster.
type ProxmoxDriver struct {
	client *proxmox.Client
	host   string
}

// NewProxmox builds a ProxmoxDriver. No I/O happens until the first call.
func NewProxmox(opts ProxmoxOptions) *ProxmoxDriver {
	apiURL := opts.Host
	if !strings.Contains(apiURL, "://") {
		apiURL = fmt.Sprintf("https://%s:8006/api2/json", opts.Host)
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !opts.VerifySSL}, //nolint:gosec // lab clusters run self-signed certs
		},
		Timeout: 30 * time.Second,
	}

	client := proxmox.NewClient(apiURL,
		proxmox.WithHTTPClient(httpClient),
		proxmox.WithAPIToken(opts.TokenID, opts.TokenValue),
	)

	return &ProxmoxDriver{client: client, host: opts.Host}
}

type proxmoxPending struct {
	task *proxmox.Task
	ref  VMRef
}

func (*proxmoxPending) isPendingClone() {}

// Type implements Driver.
func (d *ProxmoxDriver) Type() string { return "proxmox" }

// Version implements Driver.
func (d *ProxmoxDriver) Version(ctx context.Context) (string, error) {
	v, err := d.client.Version(ctx)
	if err != nil {
		return "", apperrors.Hypervisor(err, "get version")
	}
	return v.Release, nil
}

// ListTargets implements Driver. Memory figures come from the cluster
// node status endpoint.
func (d *ProxmoxDriver) ListTargets(ctx context.Context) ([]Target, error) {
	nodes, err := d.client.Nodes(ctx)
	if err != nil {
		return nil, apperrors.Hypervisor(err, "list nodes")
	}

	targets := make([]Target, 0, len(nodes))
	for _, n := range nodes {
		targets = append(targets, Target{
			Name:        n.Node,
			Online:      n.Status == "online",
			UsedMemory:  n.Mem,
			TotalMemory: n.MaxMem,
		})
	}
	return targets, nil
}

// ListTemplates implements Driver. Templates are VMs flagged as template
// on any node.
func (d *ProxmoxDriver) ListTemplates(ctx context.Context) ([]TemplateInfo, error) {
	nodes, err := d.client.Nodes(ctx)
	if err != nil {
		return nil, apperrors.Hypervisor(err, "list nodes")
	}

	var templates []TemplateInfo
	for _, n := range nodes {
		if n.Status != "online" {
			continue
		}
		node, err := d.client.Node(ctx, n.Node)
		if err != nil {
			return nil, apperrors.Hypervisor(err, "get node "+n.Node)
		}
		vms, err := node.VirtualMachines(ctx)
		if err != nil {
			return nil, apperrors.Hypervisor(err, "list VMs on "+n.Node)
		}
		for _, vm := range vms {
			if !vm.Template {
				continue
			}
			templates = append(templates, TemplateInfo{
				ID:   strconv.FormatUint(uint64(vm.VMID), 10),
				Name: vm.Name,
				Node: n.Node,
			})
		}
	}
	return templates, nil
}

// AllocateIdentifier implements Driver using the cluster nextid endpoint.
func (d *ProxmoxDriver) AllocateIdentifier(ctx context.Context) (string, error) {
	cluster, err := d.client.Cluster(ctx)
	if err != nil {
		return "", apperrors.Hypervisor(err, "get cluster")
	}
	next, err := cluster.NextID(ctx)
	if err != nil {
		return "", apperrors.Hypervisor(err, "allocate next VMID")
	}
	return strconv.Itoa(next), nil
}

// CloneTemplate implements Driver. The clone is always a full clone onto
// the selected target node.
func (d *ProxmoxDriver) CloneTemplate(ctx context.Context, req CloneRequest) (PendingClone, error) {
	newID, err := strconv.Atoi(req.NewID)
	if err != nil {
		return nil, apperrors.Hypervisor(fmt.Errorf("bad VMID %q", req.NewID), "clone template")
	}

	node, err := d.client.Node(ctx, req.SourceNode)
	if err != nil {
		return nil, apperrors.Hypervisor(err, "get source node "+req.SourceNode)
	}
	tmpl, err := node.VirtualMachine(ctx, req.SourceVMID)
	if err != nil {
		return nil, apperrors.Hypervisor(err, fmt.Sprintf("get template %d", req.SourceVMID))
	}

	_, task, err := tmpl.Clone(ctx, &proxmox.VirtualMachineCloneOptions{
		NewID:  newID,
		Name:   req.Name,
		Target: req.TargetNode,
		Full:   1,
	})
	if err != nil {
		return nil, apperrors.Hypervisor(err, fmt.Sprintf("clone template %d", req.SourceVMID))
	}

	logger.Info("Proxmox clone started",
		zap.Int("template_vmid", req.SourceVMID),
		zap.Int("new_vmid", newID),
		zap.String("target", req.TargetNode),
	)

	return &proxmoxPending{
		task: task,
		ref:  VMRef{ID: req.NewID, Node: req.TargetNode, Name: req.Name},
	}, nil
}

// WaitForCompletion implements Driver.
func (d *ProxmoxDriver) WaitForCompletion(ctx context.Context, pending PendingClone, timeout time.Duration) (VMRef, error) {
	p, ok := pending.(*proxmoxPending)
	if !ok {
		return VMRef{}, apperrors.Hypervisor(fmt.Errorf("foreign clone handle %T", pending), "wait for clone")
	}
	if err := d.waitTask(ctx, p.task, "clone", timeout); err != nil {
		return VMRef{}, err
	}
	return p.ref, nil
}

// waitTask polls a UPID until it stops, mapping failure exit statuses and
// deadline overruns onto the error taxonomy.
func (d *ProxmoxDriver) waitTask(ctx context.Context, task *proxmox.Task, op string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := task.Ping(ctx); err != nil {
			return apperrors.Hypervisor(err, "poll "+op+" task")
		}
		if task.IsCompleted {
			if task.IsFailed {
				return apperrors.Hypervisor(fmt.Errorf("task %s: %s", task.UPID, task.ExitStatus), op)
			}
			return nil
		}
		if time.Now().After(deadline) {
			return apperrors.TaskTimeout(op, int(timeout.Seconds()))
		}
		select {
		case <-ctx.Done():
			return apperrors.Hypervisor(ctx.Err(), op)
		case <-time.After(PollInterval):
		}
	}
}

// Resize implements Driver. CPU and RAM are set unconditionally; the boot
// disk only grows.
func (d *ProxmoxDriver) Resize(ctx context.Context, ref VMRef, cpuCores, ramMB, diskGB int) error {
	vm, err := d.findVM(ctx, ref)
	if err != nil {
		return err
	}

	task, err := vm.Config(ctx,
		proxmox.VirtualMachineOption{Name: "cores", Value: cpuCores},
		proxmox.VirtualMachineOption{Name: "memory", Value: ramMB},
	)
	if err != nil {
		return apperrors.Hypervisor(err, "set cores/memory")
	}
	if err := d.waitTask(ctx, task, "set cores/memory", time.Minute); err != nil {
		return err
	}

	diskKey := bootDiskKey(vm.VirtualMachineConfig)
	if diskKey == "" {
		logger.Warn("Resize skipped: no boot disk found",
			zap.String("vmid", ref.ID),
		)
		return nil
	}

	if !shouldGrowDisk(vm.MaxDisk, diskGB) {
		logger.Warn("Disk resize skipped: requested size not larger than current",
			zap.String("vmid", ref.ID),
			zap.Uint64("current_bytes", vm.MaxDisk),
			zap.Int("requested_gb", diskGB),
		)
		return nil
	}

	if err := vm.ResizeDisk(ctx, diskKey, fmt.Sprintf("%dG", diskGB)); err != nil {
		return apperrors.Hypervisor(err, "resize disk "+diskKey)
	}
	return nil
}

// bootDiskKey finds the first disk slot in bus priority order.
func bootDiskKey(cfg *proxmox.VirtualMachineConfig) string {
	if cfg == nil {
		return ""
	}
	switch {
	case cfg.SCSI0 != "":
		return "scsi0"
	case cfg.VirtIO0 != "":
		return "virtio0"
	case cfg.IDE0 != "":
		return "ide0"
	}
	return ""
}

// ConfigureNetwork implements Driver via the cloud-init ipconfig0 option.
func (d *ProxmoxDriver) ConfigureNetwork(ctx context.Context, ref VMRef, cfg NetworkConfig) error {
	vm, err := d.findVM(ctx, ref)
	if err != nil {
		return err
	}

	prefix := cfg.PrefixLen
	if prefix == 0 {
		prefix = 24
	}
	ip := cfg.IPAddress
	if !strings.Contains(ip, "/") {
		ip = fmt.Sprintf("%s/%d", ip, prefix)
	}
	value := "ip=" + ip
	if cfg.Gateway != "" {
		value += ",gw=" + cfg.Gateway
	}

	task, err := vm.Config(ctx, proxmox.VirtualMachineOption{Name: "ipconfig0", Value: value})
	if err != nil {
		return apperrors.Hypervisor(err, "set ipconfig0")
	}
	return d.waitTask(ctx, task, "set ipconfig0", time.Minute)
}

// PowerOn implements Driver.
func (d *ProxmoxDriver) PowerOn(ctx context.Context, ref VMRef, timeout time.Duration) error {
	vm, err := d.findVM(ctx, ref)
	if err != nil {
		return err
	}
	task, err := vm.Start(ctx)
	if err != nil {
		return apperrors.Hypervisor(err, "start VM")
	}
	return d.waitTask(ctx, task, "power on", timeout)
}

// Close implements Driver. Token clients hold no session state.
func (d *ProxmoxDriver) Close(ctx context.Context) {}

func (d *ProxmoxDriver) findVM(ctx context.Context, ref VMRef) (*proxmox.VirtualMachine, error) {
	vmid, err := strconv.Atoi(ref.ID)
	if err != nil {
		return nil, apperrors.Hypervisor(fmt.Errorf("bad VMID %q", ref.ID), "find VM")
	}
	node, err := d.client.Node(ctx, ref.Node)
	if err != nil {
		return nil, apperrors.Hypervisor(err, "get node "+ref.Node)
	}
	vm, err := node.VirtualMachine(ctx, vmid)
	if err != nil {
		return nil, apperrors.Hypervisor(err, fmt.Sprintf("get VM %d", vmid))
	}
	return vm, nil
}
