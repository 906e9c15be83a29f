// Package p4test provides fixtures for tests: a small demo pipeline
// schema (an L2/L3 pipeline in the ngsdn style) and value factories.
package p4test

import (
	"github.com/byllyfish/finsy/pkg/p4/schema"
)

// DemoP4Info is the text form of the demo pipeline's P4Info. It covers
// every object kind the schema indexes: exact/LPM/ternary tables, an
// action selector, controller packet metadata, a digest with a struct
// type, a register, a counter, a value set and a new_type.
const DemoP4Info = `
pkg_info {
  name: "ngsdn"
  version: "1.0.0"
  arch: "v1model"
}
tables {
  preamble {
    id: 34391805
    name: "IngressPipeImpl.l2_exact_table"
    alias: "l2_exact_table"
  }
  match_fields {
    id: 1
    name: "hdr.ethernet.dst_addr"
    annotations: "@format(MAC_ADDRESS)"
    bitwidth: 48
    match_type: EXACT
  }
  action_refs { id: 24677122 }
  action_refs { id: 28396054 annotations: "@defaultonly" scope: DEFAULT_ONLY }
  idle_timeout_behavior: NOTIFY_CONTROL
  size: 1024
}
tables {
  preamble {
    id: 39493057
    name: "IngressPipeImpl.routing_v6_table"
    alias: "routing_v6_table"
  }
  match_fields {
    id: 1
    name: "hdr.ipv6.dst_addr"
    annotations: "@format(IPV6_ADDRESS)"
    bitwidth: 128
    match_type: LPM
  }
  action_refs { id: 27301117 }
  action_refs { id: 21257015 }
  implementation_id: 291115404
  size: 1024
}
tables {
  preamble {
    id: 33951081
    name: "IngressPipeImpl.acl_table"
    alias: "acl_table"
  }
  match_fields {
    id: 1
    name: "standard_metadata.ingress_port"
    bitwidth: 9
    match_type: TERNARY
  }
  match_fields {
    id: 2
    name: "hdr.ethernet.ether_type"
    bitwidth: 16
    match_type: TERNARY
  }
  action_refs { id: 21257015 }
  action_refs { id: 28396054 }
  direct_resource_ids: 352350885
  size: 1024
}
actions {
  preamble {
    id: 21257015
    name: "NoAction"
    alias: "NoAction"
  }
}
actions {
  preamble {
    id: 28396054
    name: "IngressPipeImpl.drop"
    alias: "drop"
  }
}
actions {
  preamble {
    id: 24677122
    name: "IngressPipeImpl.set_egress_port"
    alias: "set_egress_port"
  }
  params {
    id: 1
    name: "port_num"
    bitwidth: 9
  }
}
actions {
  preamble {
    id: 27301117
    name: "IngressPipeImpl.set_next_hop"
    alias: "set_next_hop"
  }
  params {
    id: 1
    name: "dmac"
    annotations: "@format(MAC_ADDRESS)"
    bitwidth: 48
  }
}
action_profiles {
  preamble {
    id: 291115404
    name: "IngressPipeImpl.ecmp_selector"
    alias: "ecmp_selector"
  }
  table_ids: 39493057
  with_selector: true
  size: 1024
  max_group_size: 16
}
counters {
  preamble {
    id: 302055387
    name: "IngressPipeImpl.ig_counter"
    alias: "ig_counter"
  }
  spec { unit: BOTH }
  size: 64
}
direct_counters {
  preamble {
    id: 352350885
    name: "IngressPipeImpl.acl_counter"
    alias: "acl_counter"
  }
  spec { unit: BOTH }
  direct_table_id: 33951081
}
controller_packet_metadata {
  preamble {
    id: 81826293
    name: "packet_out"
    alias: "packet_out"
    annotations: "@controller_header(\"packet_out\")"
  }
  metadata { id: 1 name: "magic_val" bitwidth: 16 }
  metadata { id: 2 name: "egress_port" bitwidth: 9 }
}
controller_packet_metadata {
  preamble {
    id: 76689799
    name: "packet_in"
    alias: "packet_in"
    annotations: "@controller_header(\"packet_in\")"
  }
  metadata { id: 1 name: "ingress_port" bitwidth: 9 }
  metadata { id: 2 name: "_pad" bitwidth: 7 }
}
value_sets {
  preamble {
    id: 56033750
    name: "ParserImpl.my_vset"
    alias: "my_vset"
  }
  match {
    id: 1
    name: "ether_type"
    bitwidth: 16
    match_type: EXACT
  }
  size: 4
}
registers {
  preamble {
    id: 369140025
    name: "IngressPipeImpl.reg_counts"
    alias: "reg_counts"
  }
  type_spec { bitstring { bit { bitwidth: 32 } } }
  size: 128
}
digests {
  preamble {
    id: 401827287
    name: "IngressPipeImpl.mac_learn"
    alias: "mac_learn"
  }
  type_spec { struct { name: "mac_learn_digest_t" } }
}
type_info {
  structs {
    key: "mac_learn_digest_t"
    value {
      members {
        name: "src_addr"
        type_spec { bitstring { bit { bitwidth: 48 } } }
      }
      members {
        name: "in_port"
        type_spec { new_type { name: "port_id_t" } }
      }
    }
  }
  new_types {
    key: "port_id_t"
    value { original_type { bitstring { bit { bitwidth: 9 } } } }
  }
}
`

// Schema parses the demo P4Info, panicking on error. Tests rely on the
// fixture being valid.
func Schema() *schema.Schema {
	s, err := schema.Parse([]byte(DemoP4Info))
	if err != nil {
		panic(err)
	}
	return s
}

// Bytes returns the demo P4Info text bytes, for loaders that take raw
// input.
func Bytes() []byte {
	return []byte(DemoP4Info)
}
