// Command fpgarng drives FPGA random number boards: discovery and signalling,
// the HTTP random endpoint, distribution analysis and the inference run
// wrappers that consume the endpoint.
package main
