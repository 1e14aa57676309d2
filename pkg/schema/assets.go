package schema

// AssetAttribute copies one value from a node asset record into the
// allocation's properties. Path is the location of the value inside the
// asset record. When the asset or the value is missing, Default is used.
type AssetAttribute struct {
	Property string
	Path     []string
	Default  string
}

// Column returns the flattened column the attribute ends up in.
func (a AssetAttribute) Column() string {
	return "properties." + a.Property
}

// Intermediate properties filled by the join and folded into a base column
// by the normalizer.
const (
	eksCapacityType       = "node_capacity_type_eks"
	karpenterCapacityType = "node_capacity_type_karpenter"
	eksNodegroup          = "node_nodegroup_eks"
	karpenterNodePool     = "node_nodepool_karpenter"
	karpenterProvisioner  = "node_provisioner_karpenter"
)

// AssetAttributes is consulted by the joiner for every matched, or missed,
// allocation.
var AssetAttributes = []AssetAttribute{
	{Property: "provider", Path: []string{"properties", "provider"}},
	{Property: "region", Path: []string{"labels", "label_topology_kubernetes_io_region"}},
	{Property: "node_instance_type", Path: []string{"nodeType"}},
	{Property: "node_availability_zone", Path: []string{"labels", "label_topology_kubernetes_io_zone"}},
	{Property: eksCapacityType, Path: []string{"labels", "label_eks_amazonaws_com_capacityType"}},
	{Property: karpenterCapacityType, Path: []string{"labels", "label_karpenter_sh_capacity_type"}},
	{Property: "node_architecture", Path: []string{"labels", "label_kubernetes_io_arch"}},
	{Property: "node_os", Path: []string{"labels", "label_kubernetes_io_os"}},
	{Property: eksNodegroup, Path: []string{"labels", "label_eks_amazonaws_com_nodegroup"}},
	{Property: karpenterNodePool, Path: []string{"labels", "label_karpenter_sh_nodepool"}},
	{Property: karpenterProvisioner, Path: []string{"labels", "label_karpenter_sh_provisioner_name"}},
	{Property: "node_nodegroup_image", Path: []string{"labels", "label_eks_amazonaws_com_nodegroup_image"}},
}

// Synthesized is a column built by concatenating alternate sources, of
// which at most one is populated for a given node.
type Synthesized struct {
	Column  string
	Sources []string
}

var SynthesizedColumns = []Synthesized{
	{
		Column:  "properties.node_capacity_type",
		Sources: []string{"properties." + eksCapacityType, "properties." + karpenterCapacityType},
	},
	{
		Column:  "properties.node_nodegroup",
		Sources: []string{"properties." + eksNodegroup, "properties." + karpenterNodePool, "properties." + karpenterProvisioner},
	},
}
