// Package srcsep estimates the parameters of a multichannel audio source
// separation model and reconstructs the sources by Wiener filtering.
//
// Each source is described by a spectral power V (a product of nonnegative
// factors, optionally split into excitation and filter parts) and a mixing
// matrix A, instantaneous or one per frequency bin. The mixture is summarised
// by a grid of local spatial covariances Rx(f,n). Estimator runs generalized
// EM over these covariances with an annealed isotropic noise floor; Filter
// turns the fitted model into per-source multichannel signals.
package srcsep
