package hypervisor

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/find"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/property"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"
	"go.uber.org/zap"

	apperrors "provinator.io/provinator/internal/pkg/errors"
	"provinator.io/provinator/internal/pkg/logger"
)

// VSphereOptions configures an ESXi or vCenter connection.
type VSphereOptions struct {
	Host       string
	User       string
	Password   string
	Datacenter string
	Datastore  string
	VerifySSL  bool

	// TypeTag is esxi or vcenter; drives only the reported Type.
	TypeTag string
}

// VSphereDriver speaks the vSphere SOAP API through govmomi. The session
// is dialed lazily on first use and revalidated per call.
type VSphereDriver struct {
	opts VSphereOptions

	mu     sync.Mutex
	client *govmomi.Client
	finder *find.Finder
}

// NewVSphere builds a VSphereDriver. No I/O happens until the first call.
func NewVSphere(opts VSphereOptions) *VSphereDriver {
	return &VSphereDriver{opts: opts}
}

type vspherePending struct {
	task *object.Task
	name string
	node string
}

func (*vspherePending) isPendingClone() {}

// Type implements Driver.
func (d *VSphereDriver) Type() string {
	if d.opts.TypeTag != "" {
		return d.opts.TypeTag
	}
	return "vcenter"
}

// ensureConnection dials (or re-dials) the SDK endpoint.
func (d *VSphereDriver) ensureConnection(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil && d.client.Valid() {
		return nil
	}

	u, err := soap.ParseURL(fmt.Sprintf("https://%s/sdk", d.opts.Host))
	if err != nil {
		return apperrors.Hypervisor(err, "parse endpoint URL")
	}
	u.User = url.UserPassword(d.opts.User, d.opts.Password)

	client, err := govmomi.NewClient(ctx, u, !d.opts.VerifySSL)
	if err != nil {
		return apperrors.Hypervisor(err, "connect to "+d.opts.Host)
	}

	finder := find.NewFinder(client.Client, true)
	if d.opts.Datacenter != "" {
		dc, err := finder.Datacenter(ctx, d.opts.Datacenter)
		if err != nil {
			return apperrors.Hypervisor(err, "find datacenter "+d.opts.Datacenter)
		}
		finder.SetDatacenter(dc)
	} else {
		dc, err := finder.DefaultDatacenter(ctx)
		if err != nil {
			return apperrors.Hypervisor(err, "find default datacenter")
		}
		finder.SetDatacenter(dc)
	}

	d.client = client
	d.finder = finder
	return nil
}

// Version implements Driver.
func (d *VSphereDriver) Version(ctx context.Context) (string, error) {
	if err := d.ensureConnection(ctx); err != nil {
		return "", err
	}
	about := d.client.Client.ServiceContent.About
	return fmt.Sprintf("%s %s", about.Name, about.Version), nil
}

// ListTargets implements Driver. Host memory comes from the host summary:
// quick stats for usage, hardware for capacity.
func (d *VSphereDriver) ListTargets(ctx context.Context) ([]Target, error) {
	if err := d.ensureConnection(ctx); err != nil {
		return nil, err
	}

	hosts, err := d.finder.HostSystemList(ctx, "*")
	if err != nil {
		return nil, apperrors.Hypervisor(err, "list hosts")
	}

	refs := make([]types.ManagedObjectReference, 0, len(hosts))
	for _, h := range hosts {
		refs = append(refs, h.Reference())
	}

	var summaries []mo.HostSystem
	pc := property.DefaultCollector(d.client.Client)
	if err := pc.Retrieve(ctx, refs, []string{"summary", "name"}, &summaries); err != nil {
		return nil, apperrors.Hypervisor(err, "collect host summaries")
	}

	targets := make([]Target, 0, len(summaries))
	for _, h := range summaries {
		// QuickStats memory usage is reported in MB.
		used := uint64(h.Summary.QuickStats.OverallMemoryUsage) * 1024 * 1024
		targets = append(targets, Target{
			Name:        h.Name,
			Online:      h.Summary.Runtime.ConnectionState == types.HostSystemConnectionStateConnected,
			UsedMemory:  used,
			TotalMemory: uint64(h.Summary.Hardware.MemorySize),
		})
	}
	return targets, nil
}

// ListTemplates implements Driver.
func (d *VSphereDriver) ListTemplates(ctx context.Context) ([]TemplateInfo, error) {
	if err := d.ensureConnection(ctx); err != nil {
		return nil, err
	}

	vms, err := d.finder.VirtualMachineList(ctx, "*")
	if err != nil {
		return nil, apperrors.Hypervisor(err, "list VMs")
	}

	refs := make([]types.ManagedObjectReference, 0, len(vms))
	for _, vm := range vms {
		refs = append(refs, vm.Reference())
	}

	var summaries []mo.VirtualMachine
	pc := property.DefaultCollector(d.client.Client)
	if err := pc.Retrieve(ctx, refs, []string{"summary"}, &summaries); err != nil {
		return nil, apperrors.Hypervisor(err, "collect VM summaries")
	}

	var templates []TemplateInfo
	for _, vm := range summaries {
		if !vm.Summary.Config.Template {
			continue
		}
		templates = append(templates, TemplateInfo{
			ID:   vm.Summary.Vm.Value,
			Name: vm.Summary.Config.Name,
		})
	}
	return templates, nil
}

// AllocateIdentifier implements Driver. vSphere assigns managed object
// references implicitly during clone.
func (d *VSphereDriver) AllocateIdentifier(ctx context.Context) (string, error) {
	return "", apperrors.ErrNotSupported
}

// CloneTemplate implements Driver. CPU and RAM are applied in the clone
// config spec; the VM is left powered off.
func (d *VSphereDriver) CloneTemplate(ctx context.Context, req CloneRequest) (PendingClone, error) {
	if err := d.ensureConnection(ctx); err != nil {
		return nil, err
	}

	tmpl, err := d.finder.VirtualMachine(ctx, req.TemplateRef)
	if err != nil {
		return nil, apperrors.Hypervisor(err, "find template "+req.TemplateRef)
	}

	host, err := d.finder.HostSystem(ctx, req.TargetNode)
	if err != nil {
		return nil, apperrors.Hypervisor(err, "find host "+req.TargetNode)
	}
	pool, err := host.ResourcePool(ctx)
	if err != nil {
		return nil, apperrors.Hypervisor(err, "resolve resource pool")
	}

	dc, err := d.finder.DefaultDatacenter(ctx)
	if err != nil {
		return nil, apperrors.Hypervisor(err, "resolve datacenter")
	}
	folders, err := dc.Folders(ctx)
	if err != nil {
		return nil, apperrors.Hypervisor(err, "resolve VM folder")
	}

	hostRef := host.Reference()
	poolRef := pool.Reference()
	relocate := types.VirtualMachineRelocateSpec{
		Host: &hostRef,
		Pool: &poolRef,
	}
	if d.opts.Datastore != "" {
		ds, err := d.finder.Datastore(ctx, d.opts.Datastore)
		if err != nil {
			return nil, apperrors.Hypervisor(err, "find datastore "+d.opts.Datastore)
		}
		dsRef := ds.Reference()
		relocate.Datastore = &dsRef
	}

	spec := types.VirtualMachineCloneSpec{
		Location: relocate,
		PowerOn:  false,
		Config: &types.VirtualMachineConfigSpec{
			NumCPUs:  int32(req.CPUCores),
			MemoryMB: int64(req.RAMMB),
		},
	}

	task, err := tmpl.Clone(ctx, folders.VmFolder, req.Name, spec)
	if err != nil {
		return nil, apperrors.Hypervisor(err, "clone template "+req.TemplateRef)
	}

	logger.Info("vSphere clone started",
		zap.String("template", req.TemplateRef),
		zap.String("name", req.Name),
		zap.String("host", req.TargetNode),
	)

	return &vspherePending{task: task, name: req.Name, node: req.TargetNode}, nil
}

// WaitForCompletion implements Driver.
func (d *VSphereDriver) WaitForCompletion(ctx context.Context, pending PendingClone, timeout time.Duration) (VMRef, error) {
	p, ok := pending.(*vspherePending)
	if !ok {
		return VMRef{}, apperrors.Hypervisor(fmt.Errorf("foreign clone handle %T", pending), "wait for clone")
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	info, err := p.task.WaitForResult(tctx, nil)
	if err != nil {
		if tctx.Err() == context.DeadlineExceeded {
			return VMRef{}, apperrors.TaskTimeout("clone", int(timeout.Seconds()))
		}
		return VMRef{}, apperrors.Hypervisor(err, "clone")
	}

	ref, ok := info.Result.(types.ManagedObjectReference)
	if !ok {
		return VMRef{}, apperrors.Hypervisor(fmt.Errorf("unexpected clone result %T", info.Result), "clone")
	}
	return VMRef{ID: ref.Value, Node: p.node, Name: p.name}, nil
}

// Resize implements Driver. CPU/RAM reconfigure runs unconditionally;
// the first virtual disk only grows.
func (d *VSphereDriver) Resize(ctx context.Context, ref VMRef, cpuCores, ramMB, diskGB int) error {
	vm, err := d.vmByRef(ctx, ref)
	if err != nil {
		return err
	}

	task, err := vm.Reconfigure(ctx, types.VirtualMachineConfigSpec{
		NumCPUs:  int32(cpuCores),
		MemoryMB: int64(ramMB),
	})
	if err != nil {
		return apperrors.Hypervisor(err, "reconfigure CPU/RAM")
	}
	if err := d.waitTask(ctx, task, "reconfigure CPU/RAM", time.Minute); err != nil {
		return err
	}

	devices, err := vm.Device(ctx)
	if err != nil {
		return apperrors.Hypervisor(err, "list devices")
	}
	disks := devices.SelectByType((*types.VirtualDisk)(nil))
	if len(disks) == 0 {
		logger.Warn("Resize skipped: no virtual disk found", zap.String("vm", ref.ID))
		return nil
	}

	disk := disks[0].(*types.VirtualDisk)
	if !shouldGrowDisk(uint64(disk.CapacityInKB)*1024, diskGB) {
		logger.Warn("Disk resize skipped: requested size not larger than current",
			zap.String("vm", ref.ID),
			zap.Int64("current_kb", disk.CapacityInKB),
			zap.Int("requested_gb", diskGB),
		)
		return nil
	}

	disk.CapacityInKB = int64(diskGB) * 1024 * 1024
	task, err = vm.Reconfigure(ctx, types.VirtualMachineConfigSpec{
		DeviceChange: []types.BaseVirtualDeviceConfigSpec{
			&types.VirtualDeviceConfigSpec{
				Operation: types.VirtualDeviceConfigSpecOperationEdit,
				Device:    disk,
			},
		},
	})
	if err != nil {
		return apperrors.Hypervisor(err, "grow disk")
	}
	return d.waitTask(ctx, task, "grow disk", time.Minute)
}

// ConfigureNetwork implements Driver via guest customization (LinuxPrep
// with a fixed IP).
func (d *VSphereDriver) ConfigureNetwork(ctx context.Context, ref VMRef, cfg NetworkConfig) error {
	vm, err := d.vmByRef(ctx, ref)
	if err != nil {
		return err
	}

	prefix := cfg.PrefixLen
	if prefix == 0 {
		prefix = 24
	}

	spec := types.CustomizationSpec{
		Identity: &types.CustomizationLinuxPrep{
			HostName: &types.CustomizationFixedName{Name: ref.Name},
			Domain:   "localdomain",
		},
		NicSettingMap: []types.CustomizationAdapterMapping{
			{
				Adapter: types.CustomizationIPSettings{
					Ip:         &types.CustomizationFixedIp{IpAddress: cfg.IPAddress},
					SubnetMask: prefixToMask(prefix),
					Gateway:    gatewayList(cfg.Gateway),
				},
			},
		},
	}

	task, err := vm.Customize(ctx, spec)
	if err != nil {
		return apperrors.Hypervisor(err, "customize guest network")
	}
	return d.waitTask(ctx, task, "customize guest network", time.Minute)
}

// PowerOn implements Driver.
func (d *VSphereDriver) PowerOn(ctx context.Context, ref VMRef, timeout time.Duration) error {
	vm, err := d.vmByRef(ctx, ref)
	if err != nil {
		return err
	}
	task, err := vm.PowerOn(ctx)
	if err != nil {
		return apperrors.Hypervisor(err, "power on")
	}
	return d.waitTask(ctx, task, "power on", timeout)
}

// Close implements Driver.
func (d *VSphereDriver) Close(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client != nil {
		_ = d.client.Logout(ctx)
		d.client = nil
	}
}

func (d *VSphereDriver) waitTask(ctx context.Context, task *object.Task, op string, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := task.Wait(tctx); err != nil {
		if tctx.Err() == context.DeadlineExceeded {
			return apperrors.TaskTimeout(op, int(timeout.Seconds()))
		}
		return apperrors.Hypervisor(err, op)
	}
	return nil
}

func (d *VSphereDriver) vmByRef(ctx context.Context, ref VMRef) (*object.VirtualMachine, error) {
	if err := d.ensureConnection(ctx); err != nil {
		return nil, err
	}
	moref := types.ManagedObjectReference{Type: "VirtualMachine", Value: ref.ID}
	return object.NewVirtualMachine(d.client.Client, moref), nil
}

// prefixToMask converts a CIDR prefix length to a dotted-quad netmask.
func prefixToMask(prefix int) string {
	if prefix < 0 || prefix > 32 {
		prefix = 24
	}
	mask := ^uint32(0) << (32 - prefix)
	return fmt.Sprintf("%d.%d.%d.%d",
		byte(mask>>24), byte(mask>>16), byte(mask>>8), byte(mask))
}

func gatewayList(gw string) []string {
	if gw == "" {
		return nil
	}
	return []string{gw}
}
